package domain

// ClientRole scopes what an authenticated API client may do.
type ClientRole string

const (
	// ClientRoleIngest may push feedback signals and deployment events.
	ClientRoleIngest ClientRole = "INGEST"
	// ClientRoleOperator may additionally read alerts, analytics and drive adaptation.
	ClientRoleOperator ClientRole = "OPERATOR"
)

// APIClient is a machine client allowed to call protected endpoints.
type APIClient struct {
	ID         string
	SecretHash string
	Role       ClientRole
}
