package security

import "crypto/subtle"

const (
	PermOrdersRead        = "orders.read"
	PermOrdersWrite       = "orders.write"
	PermNotificationsRead = "notifications.read"
	PermAdmin             = "admin"
)

// In-memory client registry (replace with DB/config later)
type Client struct {
	ID      string
	Secret  string
	UserID  string   // becomes the token subject; orders and notifications are scoped to it
	Perms   []string // e.g. {"orders.read","orders.write"}
	Enabled bool
}

var customerPerms = []string{PermOrdersRead, PermOrdersWrite, PermNotificationsRead}

var Clients = map[string]Client{
	"storefront-web":   {ID: "storefront-web", Secret: "storefront-web-secret", UserID: "user-demo", Perms: customerPerms, Enabled: true},
	"storefront-admin": {ID: "storefront-admin", Secret: "storefront-admin-secret", UserID: "admin", Perms: []string{PermAdmin, PermOrdersRead}, Enabled: true},
	"svc-analytics":    {ID: "svc-analytics", Secret: "ana-secret", UserID: "svc-analytics", Perms: []string{PermOrdersRead}, Enabled: false},
}

// Authenticate looks up an enabled client and checks its secret.
func Authenticate(id, secret string) (Client, bool) {
	cl, ok := Clients[id]
	if !ok || !cl.Enabled {
		return Client{}, false
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(cl.Secret)) != 1 {
		return Client{}, false
	}
	return cl, true
}
