package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"avatarcast/internal/core/domain"
	"avatarcast/pkg/retry"
)

// PrepareSession moves a preparing live session to processing and narrates
// its products in the background. Sessions that are not streamed also get one
// rendered video per product. The outcome is announced as session_ready or
// session_error.
func (o *StreamOrchestrator) PrepareSession(ctx context.Context, id int64) error {
	live, err := o.liveSession(ctx, id)
	if err != nil {
		return err
	}
	if live.Status != domain.LiveSessionPreparing {
		return fmt.Errorf("live session %d is %s: %w", id, live.Status, domain.ErrNotPreparing)
	}
	if err := o.setStatus(ctx, id, domain.LiveSessionProcessing); err != nil {
		return err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.prepareSession(o.ctx, live); err != nil {
			o.logger.Errorw("session preparation failed", "live_session_id", id, "error", err)
			if err := o.setStatus(o.ctx, id, domain.LiveSessionError); err != nil {
				o.logger.Errorw("failed to mark session as errored", "live_session_id", id, "error", err)
			}
			o.publisher.Submit(domain.SessionError(id, "Session preparation failed"))
			return
		}
		o.publisher.Submit(domain.SessionReady(id, "Session preparation completed"))
	}()
	return nil
}

func (o *StreamOrchestrator) prepareSession(ctx context.Context, live *domain.LiveSession) error {
	products, err := retry.RetryWithResult(ctx, o.cfg.Retry, func() ([]*domain.StreamProduct, error) {
		return o.repos.StreamProducts.ListBySession(ctx, live.ID)
	})
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	if len(products) == 0 {
		return fmt.Errorf("live session %d has no products", live.ID)
	}

	// Warming the avatar is best effort here; generation retries it.
	avatar, err := o.sessionAvatar(ctx, live.ID)
	if err != nil {
		o.logger.Warnw("session avatar unavailable", "live_session_id", live.ID, "error", err)
	} else if err := o.exclusive(ctx, func() error { return o.warmAvatar(ctx, avatar) }); err != nil {
		o.logger.Warnw("avatar warm-up failed", "avatar_id", avatar.ID, "error", err)
	}

	for _, sp := range products {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.narrate(ctx, live, sp, avatar)
	}
	return o.setStatus(ctx, live.ID, domain.LiveSessionReady)
}

// narrate scripts and voices one product, then renders its video unless the
// session is streamed. Failures mark the product as unprocessed and do not
// stop the session.
func (o *StreamOrchestrator) narrate(ctx context.Context, live *domain.LiveSession, sp *domain.StreamProduct, avatar *domain.Avatar) {
	log := o.logger.With("live_session_id", live.ID, "stream_product_id", sp.ID)

	product, err := retry.RetryWithResult(ctx, o.cfg.Retry, func() (*domain.Product, error) {
		return o.repos.Products.GetByID(ctx, sp.ProductID)
	})
	if err == nil {
		var script, audio string
		script, audio, err = o.narrator.NarrateProduct(ctx, product, live)
		if err == nil {
			sp.ScriptText = script
			sp.AudioPath = audio
		}
	}
	if err == nil && !live.ForStream {
		if avatar == nil {
			err = fmt.Errorf("live session %d: no avatar to render with", live.ID)
		} else {
			err = o.exclusive(ctx, func() error {
				video, err := o.render(ctx, avatar, sp.AudioPath, o.videoPath("output", live.ID, sp.ProductID))
				if err == nil {
					sp.VideoPath = video
				}
				return err
			})
		}
	}
	sp.IsProcessed = err == nil
	if err != nil {
		log.Errorw("failed to process product", "error", err)
	}

	if err := retry.Retry(ctx, o.cfg.Retry, func() error {
		return o.repos.StreamProducts.Update(ctx, sp)
	}); err != nil {
		log.Errorw("failed to persist stream product", "error", err)
	}
}

func (o *StreamOrchestrator) StartSession(ctx context.Context, id int64) error {
	live, err := o.liveSession(ctx, id)
	if err != nil {
		return err
	}
	if live.Status != domain.LiveSessionReady {
		return fmt.Errorf("live session %d is %s: %w", id, live.Status, domain.ErrNotReady)
	}
	if err := o.setStatus(ctx, id, domain.LiveSessionLive); err != nil {
		return err
	}
	o.publisher.Submit(domain.SessionStarted(id))
	return nil
}

func (o *StreamOrchestrator) StopSession(ctx context.Context, id int64) error {
	if _, err := o.liveSession(ctx, id); err != nil {
		return err
	}
	if err := o.setStatus(ctx, id, domain.LiveSessionCompleted); err != nil {
		return err
	}
	o.publisher.Submit(domain.SessionStopped(id))
	return nil
}

// AnswerQuestion voices an answer to a viewer question during a live session.
// When realtimeSessionID names an open realtime session the answer is
// lip-synced into its video track, otherwise it is rendered to a video file.
// Both need the producer, so a busy producer fails fast with
// ErrGenerationInProgress.
func (o *StreamOrchestrator) AnswerQuestion(ctx context.Context, liveSessionID, commentID int64, realtimeSessionID string) error {
	live, err := o.liveSession(ctx, liveSessionID)
	if err != nil {
		return err
	}
	if live.Status != domain.LiveSessionLive {
		return fmt.Errorf("live session %d is %s: %w", liveSessionID, live.Status, domain.ErrNotLive)
	}

	comment, err := retry.RetryWithResult(ctx, o.cfg.Retry, func() (*domain.Comment, error) {
		return o.repos.Comments.GetByID(ctx, commentID)
	})
	if err != nil {
		return fmt.Errorf("comment %d: %w", commentID, err)
	}
	if comment.SessionID != liveSessionID {
		return fmt.Errorf("comment %d: %w", commentID, domain.ErrNotFound)
	}
	if !comment.IsQuestion {
		return fmt.Errorf("comment %d: %w", commentID, domain.ErrNotQuestion)
	}
	if comment.Answered {
		return fmt.Errorf("comment %d: %w", commentID, domain.ErrAlreadyAnswered)
	}

	if realtimeSessionID != "" {
		if _, ok := o.transport.Lookup(realtimeSessionID); !ok {
			return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, realtimeSessionID)
		}
		if !o.tracker.TryBegin(realtimeSessionID, "qa_"+strconv.FormatInt(commentID, 10)) {
			return domain.ErrGenerationInProgress
		}
	}
	if !o.tryAcquire() {
		if realtimeSessionID != "" {
			o.tracker.End(realtimeSessionID)
		}
		return domain.ErrGenerationInProgress
	}

	o.publisher.Submit(domain.QuestionProcessing(liveSessionID, commentID, comment.Username))

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if realtimeSessionID != "" {
			defer o.tracker.End(realtimeSessionID)
		}
		defer o.release()
		video, audio, err := o.answer(o.ctx, live, comment, realtimeSessionID)
		if err != nil {
			o.logger.Errorw("failed to answer question",
				"live_session_id", liveSessionID, "comment_id", commentID, "error", err)
			o.publisher.Submit(domain.QuestionError(liveSessionID, commentID, "Failed to answer question: "+err.Error()))
			return
		}
		o.publisher.Submit(domain.QuestionAnswered(liveSessionID, commentID, o.ArtifactURL(video), o.ArtifactURL(audio)))
	}()
	return nil
}

// answer returns the rendered video path, empty for realtime answers, and the
// voiced audio path. The caller holds the gate.
func (o *StreamOrchestrator) answer(ctx context.Context, live *domain.LiveSession, comment *domain.Comment, realtimeSessionID string) (videoPath, audioPath string, err error) {
	audioPath, err = o.answers.SynthesizeAnswer(ctx, comment.Message, live)
	if err != nil {
		return "", "", fmt.Errorf("synthesize answer: %w", err)
	}
	if audioPath == "" {
		return "", "", domain.ErrNoAudioArtifact
	}
	avatar, err := o.sessionAvatar(ctx, live.ID)
	if err != nil {
		return "", "", err
	}

	if realtimeSessionID != "" {
		sess, ok := o.transport.Lookup(realtimeSessionID)
		if !ok {
			return "", "", fmt.Errorf("%w: %s", domain.ErrSessionNotFound, realtimeSessionID)
		}
		if err := o.generate(ctx, sess.Video(), sess.FPS(), audioPath, avatar); err != nil && !errors.Is(err, domain.ErrSessionClosed) {
			return "", "", fmt.Errorf("generate answer video: %w", err)
		}
	} else {
		videoPath, err = o.render(ctx, avatar, audioPath, o.videoPath("answer", live.ID, comment.ID))
		if err != nil {
			return "", "", err
		}
	}

	err = retry.Retry(ctx, o.cfg.Retry, func() error {
		return o.repos.Comments.MarkAnswered(ctx, comment.ID, videoPath)
	})
	if err != nil {
		return "", "", fmt.Errorf("mark answered: %w", err)
	}
	return videoPath, audioPath, nil
}
