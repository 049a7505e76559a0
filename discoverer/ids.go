package discoverer

import (
	uuid "github.com/satori/go.uuid"

	"github.com/klaytn/kale-pool/models"
)

func parseUUID(s string) (models.ID, error) {
	return uuid.FromString(s)
}
