package gateway

// Status is the provisioning state reported for a launch session.
type Status string

const (
	StatusPending      Status = "pending"
	StatusVerified     Status = "verified"
	StatusProvisioning Status = "provisioning"
	StatusReady        Status = "ready"
	StatusFailed       Status = "failed"
	StatusExpired      Status = "expired"
)

// Terminal reports whether polling should stop at this status.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed || s == StatusExpired
}

type Bootstrap struct {
	Enabled                  bool   `json:"enabled"`
	RequireDelegatedIdentity bool   `json:"require_delegated_identity"`
	IdentityAppID            string `json:"identity_app_id"`
	IdentityClientID         string `json:"identity_client_id"`
	PollIntervalMs           int    `json:"poll_interval_ms"`
}

type SuggestRequest struct {
	WalletAddress  string `json:"wallet_address"`
	Intent         string `json:"intent"`
	GatewayAuthKey string `json:"gateway_auth_key,omitempty"`
}

type SuggestResponse struct {
	Config      map[string]any `json:"config"`
	Assumptions []string       `json:"assumptions"`
	Warnings    []string       `json:"warnings"`
}

type ChallengeRequest struct {
	WalletAddress   string `json:"wallet_address"`
	DelegatedUserID string `json:"delegated_user_id"`
	ChainID         int64  `json:"chain_id"`
}

type ChallengeResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Version   string `json:"version"`
}

type VerifyRequest struct {
	SessionID       string         `json:"session_id"`
	WalletAddress   string         `json:"wallet_address"`
	DelegatedUserID string         `json:"delegated_user_id"`
	IdentityToken   string         `json:"identity_token"`
	AccessToken     string         `json:"access_token"`
	Message         string         `json:"message"`
	Signature       string         `json:"signature"`
	Config          map[string]any `json:"config"`
}

type SessionStatus struct {
	Status      Status `json:"status"`
	Detail      string `json:"detail"`
	InstanceURL string `json:"instance_url"`
	VerifyURL   string `json:"verify_url"`
	Error       string `json:"error"`
	ProfileName string `json:"profile_name"`
	EigenAppID  string `json:"eigen_app_id"`
}

type OnboardingState struct {
	Objective     string   `json:"objective"`
	MissingFields []string `json:"missing_fields"`
	CurrentStep   string   `json:"current_step"`
	Completed     bool     `json:"completed"`
}

type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type ChatResponse struct {
	State OnboardingState `json:"state"`
}
