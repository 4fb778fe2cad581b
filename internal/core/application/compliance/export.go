package compliance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

// ExportViewingKeys fetches the viewing keys of the scoped addresses from
// custody. Every fetched key is audited, and the bundle is only returned
// once the export itself has been durably recorded in the audit log.
func (s *Service) ExportViewingKeys(
	ctx context.Context, scope domain.ViewingKeyScope,
) (*domain.ViewingKeyBundle, error) {
	if !s.cfg.Enabled {
		return nil, domain.ErrComplianceDisabled
	}
	if s.keys == nil {
		return nil, fmt.Errorf("missing viewing key provider")
	}
	if len(scope.Addresses) == 0 {
		return nil, domain.NewValidationError("addresses", "must not be empty")
	}
	if scope.ExportedBy == "" {
		return nil, domain.NewValidationError("exportedBy", "must not be empty")
	}
	if err := scope.DateRange.Validate(); err != nil {
		return nil, err
	}

	bundleID := uuid.New().String()
	keys := make([]domain.ViewingKey, 0, len(scope.Addresses))
	for _, addr := range scope.Addresses {
		key, err := s.keys.ExportViewingKey(ctx, addr)

		event := domain.AuditEvent{
			Type:   domain.EventKeyOperation,
			UserID: scope.UserID,
			Context: map[string]string{
				"operation":  "export_viewing_key",
				"address":    addr,
				"exportId":   bundleID,
				"exportedBy": scope.ExportedBy,
			},
		}
		if err != nil {
			event.Severity = domain.SeverityCritical
			event.Context["error"] = err.Error()
			s.audit.Log(ctx, event)

			s.logger.WithError(err).WithField("export_id", bundleID).
				Error("failed to export viewing key")
			return nil, fmt.Errorf("failed to export viewing key: %w", err)
		}
		s.audit.Log(ctx, event)

		keys = append(keys, domain.ViewingKey{Address: addr, Key: key})
	}

	bundle := &domain.ViewingKeyBundle{
		ID:         bundleID,
		UserID:     scope.UserID,
		Keys:       keys,
		DateRange:  scope.DateRange,
		ExportedAt: s.now(),
		ExportedBy: scope.ExportedBy,
	}

	if _, err := s.audit.LogSync(ctx, domain.AuditEvent{
		Type:   domain.EventComplianceExport,
		UserID: scope.UserID,
		Context: map[string]string{
			"exportId":     bundle.ID,
			"exportedBy":   scope.ExportedBy,
			"reason":       scope.Reason,
			"addressCount": strconv.Itoa(len(keys)),
			"periodStart":  scope.DateRange.Start.Format(time.RFC3339),
			"periodEnd":    scope.DateRange.End.Format(time.RFC3339),
		},
	}); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"export_id":   bundle.ID,
			"exported_by": scope.ExportedBy,
		}).Error("viewing key export not audited, refusing to disclose keys")
		return nil, err
	}

	return bundle, nil
}
