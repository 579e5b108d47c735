package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"backoffice/internal/domain/model"
	"backoffice/internal/numbering"
	repo "backoffice/internal/repository"

	"github.com/rs/zerolog"
)

const maxSequenceKeyLen = 100

type SequenceUsecase struct {
	counters repo.SequenceRepository
	issued   repo.IssuedNumberRepository
	loc      *time.Location
	now      func() time.Time
	log      zerolog.Logger
}

// DI
func NewSequenceUsecase(
	counters repo.SequenceRepository,
	issued repo.IssuedNumberRepository,
	loc *time.Location,
	logger zerolog.Logger,
) *SequenceUsecase {
	if loc == nil {
		loc = time.UTC
	}
	return &SequenceUsecase{
		counters: counters,
		issued:   issued,
		loc:      loc,
		now:      time.Now,
		log:      logger.With().Str("component", "sequence").Logger(),
	}
}

// NextNumber はキーのカウンタを1つ進めて返す。
// 欠番は起こりうるが、同じ値を2回返すことはない。
func (u *SequenceUsecase) NextNumber(ctx context.Context, key string) (int64, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, NewHTTPError(http.StatusBadRequest, "sequence key required")
	}
	if len(key) > maxSequenceKeyLen {
		return 0, NewHTTPError(http.StatusBadRequest, "sequence key too long")
	}

	v, err := u.counters.Next(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("next %q: %w", key, err)
	}
	return v, nil
}

type IssueOutput struct {
	DocType string `json:"doc_type"`
	Key     string `json:"key"`
	Value   int64  `json:"value"`
	Code    string `json:"code"`
}

// Issue は文書種別のポリシーで番号を払い出し、控えを残す。
func (u *SequenceUsecase) Issue(ctx context.Context, actorID string, docType string) (IssueOutput, error) {
	if strings.TrimSpace(actorID) == "" {
		return IssueOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	p, ok := numbering.Lookup(docType)
	if !ok {
		return IssueOutput{}, NewHTTPError(http.StatusNotFound, "unknown doc_type")
	}

	at := u.now().In(u.loc)
	key := p.Key(at)

	v, err := u.NextNumber(ctx, key)
	if err != nil {
		return IssueOutput{}, err
	}
	code := p.Render(at, v)

	err = u.issued.Create(ctx, model.IssuedNumber{
		DocType: p.DocType,
		SeqKey:  key,
		Value:   v,
		Code:    code,
		ActorID: actorID,
	})
	if errors.Is(err, repo.ErrDuplicateKey) {
		//採番の不具合。リトライせず大きく記録する
		u.log.Error().
			Str("doc_type", p.DocType).
			Str("key", key).
			Int64("value", v).
			Str("code", code).
			Msg("duplicate document number issued")
		return IssueOutput{}, fmt.Errorf("issue %s: %w", code, err)
	}
	if err != nil {
		return IssueOutput{}, fmt.Errorf("record %s: %w", code, err)
	}

	u.log.Info().Str("doc_type", p.DocType).Str("code", code).Str("actor_id", actorID).Msg("document number issued")
	return IssueOutput{DocType: p.DocType, Key: key, Value: v, Code: code}, nil
}

type PeekOutput struct {
	DocType string `json:"doc_type"`
	Key     string `json:"key"`
	Current int64  `json:"current"`
}

// Peek は現在の期間キーと最後に払い出した値（未使用なら0）
func (u *SequenceUsecase) Peek(ctx context.Context, docType string) (PeekOutput, error) {
	p, ok := numbering.Lookup(docType)
	if !ok {
		return PeekOutput{}, NewHTTPError(http.StatusNotFound, "unknown doc_type")
	}
	key := p.Key(u.now().In(u.loc))

	v, _, err := u.counters.Current(ctx, key)
	if err != nil {
		return PeekOutput{}, fmt.Errorf("current %q: %w", key, err)
	}
	return PeekOutput{DocType: p.DocType, Key: key, Current: v}, nil
}

func (u *SequenceUsecase) Policies() []numbering.Policy {
	return numbering.Policies()
}
