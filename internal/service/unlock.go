package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/manudev97/first-frame-sub000/internal/models"
	"github.com/manudev97/first-frame-sub000/internal/store"
)

// AttemptUnlock runs the gate check, validates the puzzle submission and, on
// success, grants access. Derivative registration, completion telemetry and
// protected delivery each run isolated from one another; no single failure
// aborts the grant.
func (s *Service) AttemptUnlock(ctx context.Context, req models.UnlockRequest) (*models.UnlockResult, error) {
	// Gate: a payer with any unpaid royalty, for any content, cannot
	// accumulate a second debt. The puzzle is not evaluated.
	unpaid, err := s.ledger.ListUnpaidByPayer(ctx, req.PayerID)
	if err != nil {
		return nil, fmt.Errorf("gate check: %w", err)
	}
	if len(unpaid) > 0 {
		return &models.UnlockResult{
			Granted:      false,
			Reason:       fmt.Sprintf("payer has %d unpaid royalties outstanding", len(unpaid)),
			PendingCount: len(unpaid),
		}, nil
	}

	// A session miss (unknown id, expired, wrong content) reads the same
	// as a wrong solution to the caller.
	session, ok := s.sessions.Get(req.SessionID)
	if !ok || session.ContentID != req.ContentID || !session.Matches(req.Sequence) {
		return &models.UnlockResult{Granted: false, Reason: "invalid puzzle solution"}, nil
	}
	s.sessions.Delete(session.ID)

	content, err := s.catalog.Get(ctx, req.ContentID)
	if err != nil {
		if errors.Is(err, store.ErrContentNotFound) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("content lookup: %w", err)
	}

	var (
		wg           sync.WaitGroup
		derivativeID string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		tag := fmt.Sprintf("derivative:%s:%d", content.ID, req.PayerID)
		ipID, err := s.chain.RegisterDerivative(ctx, content.ID, content.CompanionImageURI, tag)
		if err != nil {
			s.logger.Warn("derivative registration failed", "content_id", content.ID, "err", err)
			return
		}
		derivativeID = ipID
	}()
	go func() {
		defer wg.Done()
		err := s.telemetry.RecordCompletion(models.PuzzleCompletion{
			SessionID:   session.ID,
			PayerID:     req.PayerID,
			ContentID:   content.ID,
			Pieces:      len(session.Solution),
			CompletedAt: s.nowFn(),
		})
		if err != nil {
			s.logger.Warn("completion telemetry failed", "session_id", session.ID, "err", err)
		}
	}()
	defer wg.Wait()

	result := &models.UnlockResult{Granted: true}

	// Protected delivery, then debt creation. The debt only exists once
	// the payer actually holds the content; a failed send costs nothing.
	if content.Delivery.FileID != "" {
		chatID := content.Delivery.ChatID
		if chatID == 0 {
			chatID = req.PayerID
		}
		msgRef, err := s.transport.SendFile(ctx, chatID, content.Delivery.FileID, content.Title, true)
		if err != nil {
			s.logger.Warn("protected delivery failed", "content_id", content.ID, "payer_id", req.PayerID, "err", err)
		} else {
			result.VideoForwarded = true
			result.MessageRef = msgRef
			royalty, _, err := s.ledger.CreateOrGetPending(ctx, models.CreateRoyaltyParams{
				PayerID:             req.PayerID,
				ContentID:           content.ID,
				TokenInstanceID:     content.TokenInstanceID,
				Title:               content.Title,
				Amount:              content.Amount,
				UploaderID:          content.UploaderID,
				UploaderDisplayName: content.UploaderName,
				Delivery: models.DeliveryRefs{
					ChatID:    chatID,
					FileID:    content.Delivery.FileID,
					ChannelID: content.Delivery.ChannelID,
				},
			})
			if err != nil {
				return nil, fmt.Errorf("create pending royalty: %w", err)
			}
			result.Royalty = royalty
		}
	}

	wg.Wait()
	result.DerivativeIPID = derivativeID
	return result, nil
}
