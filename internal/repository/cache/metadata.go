package cache

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/matching-engine/internal/domain/models"
)

const metadataTimeLayout = "2006-01-02T15:04:05.999999999Z07:00"

func parseDecimal(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse price %q: %w", raw, err)
	}
	return d, nil
}

func parseMetadata(fields map[string]string, snap *models.BookSnapshot) error {
	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return fmt.Errorf("parse version: %w", err)
	}
	updatedAt, err := time.Parse(metadataTimeLayout, fields["updated_at"])
	if err != nil {
		return fmt.Errorf("parse updated_at: %w", err)
	}
	snap.Version = version
	snap.UpdatedAt = updatedAt
	return nil
}
