package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delivery-tracking/internal/domain/geo"
	"delivery-tracking/internal/tracking/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoPosition means the partner has no reported position row yet.
var ErrNoPosition = errors.New("no current position for partner")

// PartnerLocationRepo reads a partner's latest reported position using
// pgx and plain SQL. It backs the fallback poller when push delivery is
// silent.
type PartnerLocationRepo struct {
	pool *pgxpool.Pool
}

// NewPartnerLocationRepo constructs a repo over the shared pool.
func NewPartnerLocationRepo(pool *pgxpool.Pool) *PartnerLocationRepo {
	return &PartnerLocationRepo{pool: pool}
}

// CurrentPosition returns the partner's most recent position.
func (repo *PartnerLocationRepo) CurrentPosition(ctx context.Context, partnerID string) (domain.PositionSample, error) {
	var (
		lat, lng   float64
		heading    *float64
		speed      *float64
		accuracy   *float64
		recordedAt time.Time
	)

	err := repo.pool.QueryRow(ctx, `
		SELECT latitude, longitude, heading_degrees, speed_kmh, accuracy_meters, recorded_at
		FROM partner_locations
		WHERE partner_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1
	`, partnerID).Scan(&lat, &lng, &heading, &speed, &accuracy, &recordedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PositionSample{}, fmt.Errorf("%w: %s", ErrNoPosition, partnerID)
		}
		return domain.PositionSample{}, fmt.Errorf("query partner position: %w", err)
	}

	sample := domain.PositionSample{
		Point:     geo.Point{Lat: lat, Lng: lng},
		Timestamp: recordedAt,
		Source:    domain.SourcePoll,
	}
	if heading != nil {
		sample.HeadingDegrees = *heading
	}
	if speed != nil {
		sample.SpeedKMH = *speed
	}
	if accuracy != nil {
		sample.AccuracyMeters = *accuracy
	}
	return sample, nil
}
