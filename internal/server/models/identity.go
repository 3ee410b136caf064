package models

// IdentityClaim is what a verified identity provider assertion tells us
// about its holder.
type IdentityClaim struct {
	Subject    string
	Email      string
	Name       string
	PictureURL string
}
