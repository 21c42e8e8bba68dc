package auth

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/schoolworks/maintenance-desk/pkg/util"
)

const ingestKeyHeader = "X-Ingest-Key"

// HashIngestKey hashes a mail relay key for INGEST_API_KEY_HASH.
func HashIngestKey(key string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// RequireIngestKey checks the relay key when a hash is configured. An empty
// hash leaves the endpoint open, matching the public form.
func RequireIngestKey(hash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if hash == "" || c.Method() == fiber.MethodOptions {
			return c.Next()
		}
		key := c.Get(ingestKeyHeader)
		if key == "" {
			return apperrors.NewUnauthorized("missing ingest key")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
			return apperrors.NewUnauthorized("invalid ingest key")
		}
		return c.Next()
	}
}
