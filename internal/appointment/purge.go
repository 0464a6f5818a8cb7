package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AlertNotifier avisa al canal de guardia cuando la purga termina con fallos.
type AlertNotifier interface {
	Alert(ctx context.Context, message string)
}

// Purge elimina los datos personales caducados en dos pasadas. La primera
// cancela y anonimiza las citas no atendidas cuya fecha de estado supera la
// antigüedad de purga, retirando sus carpetas. La segunda retira la carpeta
// de entrada de las citas Completadas pasado su plazo más corto. Un fallo en
// una cita no detiene la pasada.
func (s *Service) Purge(ctx context.Context, notifier AlertNotifier) error {
	runID := uuid.NewString()
	logger := log.With().Str("purge_run", runID).Logger()
	now := s.clock.Now()

	failures := 0

	cutoff := now.Add(-s.cfg.PurgeAge)
	stale, err := s.repo.FindNotAnonymizedOlderThan(ctx, cutoff, s.cfg.AnonymousDomain)
	if err != nil {
		return err
	}
	logger.Info().Int("appointments", len(stale)).Time("cutoff", cutoff).Msg("purga: citas caducadas")

	for i := range stale {
		ap := &stale[i]

		switch ap.State {
		case StateInitializing, StateCreated, StatePendant, StateOnCourse:
			ap.ChangeState(StateCancelled, now)
			if err := s.repo.Update(ctx, ap); err != nil {
				logger.Error().Err(err).Int64("id", ap.ID).Msg("purga: no se pudo cancelar la cita")
				failures++
				continue
			}
		}

		if err := s.store.DeletePath(ctx, s.appointmentPath(ap)); err != nil {
			logger.Error().Err(err).Int64("id", ap.ID).Msg("purga: no se pudieron eliminar las carpetas")
			failures++
		}
		if err := s.anonymize(ctx, ap); err != nil {
			logger.Error().Err(err).Int64("id", ap.ID).Msg("purga: no se pudo anonimizar la cita")
			failures++
		}
	}

	completedCutoff := now.Add(-s.cfg.PurgeCompletedAge)
	completed, err := s.repo.FindNotAnonymizedByStateOlderThan(ctx, StateCompleted, completedCutoff, s.cfg.AnonymousDomain)
	if err != nil {
		return err
	}
	logger.Info().Int("appointments", len(completed)).Time("cutoff", completedCutoff).Msg("purga: citas completadas con documentación de entrada")

	for i := range completed {
		ap := &completed[i]
		if err := s.store.DeletePath(ctx, s.documentsPath(ap, s.cfg.FolderUploads)); err != nil {
			logger.Error().Err(err).Int64("id", ap.ID).Msg("purga: no se pudo eliminar la carpeta de entrada")
			failures++
		}
	}

	if failures > 0 {
		logger.Warn().Int("failures", failures).Msg("purga terminada con fallos")
		if notifier != nil {
			notifier.Alert(ctx, fmt.Sprintf("Purga %s terminada con %d fallos", runID, failures))
		}
	} else {
		logger.Info().Msg("purga terminada")
	}
	return nil
}
