package email

const (
	subjectInvitation    = "You're invited to join the marketplace"
	subjectFollowUp      = "Quick follow-up on your invitation"
	subjectWelcome       = "Welcome aboard, let's finish your profile"
	subjectListingLive   = "Your listing is live"
	subjectWelcomeAboard = "Welcome to the partner programme"
)
