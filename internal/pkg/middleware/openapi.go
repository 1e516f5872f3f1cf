package middleware

import (
	"errors"
	"regexp"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

var fiberParam = regexp.MustCompile(`:(\w+)`)

// OpenAPIValidator checks path parameters, query and body of a request
// against the operation documented for its route. The handler must be
// attached to the route itself, not a group, so c.Route() names the
// documented path. Routes missing from doc pass through unchecked.
func OpenAPIValidator(doc *openapi3.T, basePath string) fiber.Handler {
	options := &openapi3filter.Options{
		// Keys are verified by APIKeyAuthMiddleware.
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}
	return func(c *fiber.Ctx) error {
		docPath := fiberParam.ReplaceAllString(strings.TrimPrefix(c.Route().Path, basePath), "{$1}")
		item := doc.Paths.Find(docPath)
		if item == nil {
			return c.Next()
		}
		op := item.GetOperation(c.Method())
		if op == nil {
			return c.Next()
		}

		req, err := adaptor.ConvertRequest(c, false)
		if err != nil {
			log.Errorf("[API] Failed to convert request for validation: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Internal error"})
		}
		input := &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: c.AllParams(),
			Route: &routers.Route{
				Spec:      doc,
				Path:      docPath,
				PathItem:  item,
				Method:    c.Method(),
				Operation: op,
			},
			Options: options,
		}
		if err := openapi3filter.ValidateRequest(c.UserContext(), input); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": validationMessage(err)})
		}
		return c.Next()
	}
}

func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.Parameter != nil:
			reason := reqErr.Reason
			if reqErr.Err != nil {
				reason = reqErr.Err.Error()
			}
			return "parameter " + reqErr.Parameter.Name + ": " + reason
		case reqErr.Err != nil:
			var schemaErr *openapi3.SchemaError
			if errors.As(reqErr.Err, &schemaErr) {
				if field := schemaErr.JSONPointer(); len(field) > 0 {
					return "body " + strings.Join(field, ".") + ": " + schemaErr.Reason
				}
				return "body: " + schemaErr.Reason
			}
			return "body: " + reqErr.Err.Error()
		case reqErr.Reason != "":
			return reqErr.Reason
		}
	}
	return err.Error()
}
