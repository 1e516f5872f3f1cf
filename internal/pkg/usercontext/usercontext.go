package usercontext

import "github.com/gofiber/fiber/v2"

// Locals keys set by the operator auth middleware
const (
	KeyOperator = "OPERATOR_CONTEXT"
	KeyTenantID = "tenant_id"
)

// OperatorContext identifies the API key behind a request
type OperatorContext struct {
	KeyID    string `json:"key_id"`
	Name     string `json:"name"`
	TenantID uint   `json:"tenant_id"`
	Role     string `json:"role"`
	CanWrite bool   `json:"can_write"`
}

// Actor is the name recorded in audit trails.
func (o OperatorContext) Actor() string {
	if o.Name != "" {
		return o.Name + " (" + o.KeyID + ")"
	}
	return "key:" + o.KeyID
}

// GetOperatorContext retrieves the operator context from fiber context
// Returns an empty context if none is set
func GetOperatorContext(c *fiber.Ctx) OperatorContext {
	if ctx, ok := c.Locals(KeyOperator).(OperatorContext); ok {
		return ctx
	}
	return OperatorContext{}
}

// IsAuthenticated checks if the request carried a valid key
func IsAuthenticated(c *fiber.Ctx) bool {
	return GetOperatorContext(c).KeyID != ""
}

// GetTenantID returns the tenant bound to the key, or 0 if unauthenticated
func GetTenantID(c *fiber.Ctx) uint {
	return GetOperatorContext(c).TenantID
}
