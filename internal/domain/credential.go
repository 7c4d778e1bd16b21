package domain

// Credential is a stored passkey credential, keyed by the opaque id the
// authenticator produced. Only used for login lookup; unrelated to
// billing.
type Credential struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKey"`
	Address   string `json:"address"`
}

// StoreCredentialRequest is the input for saving a credential.
type StoreCredentialRequest struct {
	ID        string `json:"id" validate:"required"`
	PublicKey string `json:"publicKey" validate:"required"`
	Address   string `json:"address" validate:"required,startswith=0x"`
}
