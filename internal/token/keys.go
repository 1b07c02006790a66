package token

// SigningKey pairs a key identifier with its HMAC secret.
type SigningKey struct {
	KID    string
	Secret []byte
}

// KeyProvider supplies the active signing key and the full set of keys
// accepted during verification. Keeping verification plural lets a rotated
// key stay verifiable for a grace window without touching the service.
type KeyProvider interface {
	SigningKey() SigningKey
	VerificationKeys() []SigningKey
}

// StaticKeyProvider serves a single process-wide secret loaded at startup.
type StaticKeyProvider struct {
	key SigningKey
}

// NewStaticKeyProvider wraps the configured signing secret.
func NewStaticKeyProvider(secret string) *StaticKeyProvider {
	return &StaticKeyProvider{key: SigningKey{KID: "primary", Secret: []byte(secret)}}
}

func (p *StaticKeyProvider) SigningKey() SigningKey {
	return p.key
}

func (p *StaticKeyProvider) VerificationKeys() []SigningKey {
	return []SigningKey{p.key}
}
