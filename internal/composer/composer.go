// Package composer turns a situation analysis into meme text, choosing a template
// at random for a new handle and cycling through templates on remixes.
package composer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/benvon/situation-monitor/internal/models"
)

// Analysis is the result of the remote situation operation as seen by the client.
type Analysis struct {
	Situation       string `json:"situation"`
	ProfileImageURL string `json:"profileImageUrl"`
	Handle          string `json:"handle"`
}

// Meme is a fully composed meme ready to render.
type Meme struct {
	TemplateIndex   int    `json:"templateIndex"`
	Image           string `json:"imageName"`
	TopText         string `json:"topText"`
	BottomText      string `json:"bottomText"`
	ProfileImageURL string `json:"profileImageUrl"`
	Handle          string `json:"handle"`
}

// Composer selects templates against a HistoryStore.
type Composer struct {
	history   HistoryStore
	templates []Template
	mu        sync.Mutex
	rng       *rand.Rand
}

// Option customizes a Composer.
type Option func(*Composer)

// WithRand sets the random source used for first-time template picks.
func WithRand(r *rand.Rand) Option {
	return func(c *Composer) { c.rng = r }
}

// New creates a composer over history.
func New(history HistoryStore, opts ...Option) *Composer {
	c := &Composer{
		history:   history,
		templates: Templates(),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type selection struct {
	key   string
	index int
	seen  bool
}

// SelectTemplate picks the template index for handle and records it.
// A handle seen before advances one step past its last index (starting from -1);
// a new handle gets a uniformly random index and is marked seen.
func (c *Composer) SelectTemplate(ctx context.Context, handle string) (int, error) {
	sel, err := c.choose(ctx, handle)
	if err != nil {
		return 0, err
	}
	if err := c.record(ctx, sel); err != nil {
		return 0, err
	}
	return sel.index, nil
}

func (c *Composer) choose(ctx context.Context, handle string) (selection, error) {
	sel := selection{key: models.HandleKey(handle)}
	n := len(c.templates)

	seen, err := c.history.HasSeen(ctx, sel.key)
	if err != nil {
		return sel, err
	}
	sel.seen = seen

	if seen {
		last, ok, err := c.history.LastIndex(ctx, sel.key)
		if err != nil {
			return sel, err
		}
		if !ok {
			last = -1
		}
		sel.index = ((last+1)%n + n) % n
	} else {
		c.mu.Lock()
		sel.index = c.rng.IntN(n)
		c.mu.Unlock()
	}
	return sel, nil
}

func (c *Composer) record(ctx context.Context, sel selection) error {
	if err := c.history.SetLastIndex(ctx, sel.key, sel.index); err != nil {
		return err
	}
	if !sel.seen {
		return c.history.MarkSeen(ctx, sel.key)
	}
	return nil
}

// Compose fills template idx with the analysis.
func (c *Composer) Compose(a Analysis, idx int) (*Meme, error) {
	if idx < 0 || idx >= len(c.templates) {
		return nil, fmt.Errorf("template index %d out of range", idx)
	}
	tpl := c.templates[idx]
	top, bottom := tpl.Fill(a.Situation)
	return &Meme{
		TemplateIndex:   idx,
		Image:           tpl.Image,
		TopText:         top,
		BottomText:      bottom,
		ProfileImageURL: a.ProfileImageURL,
		Handle:          a.Handle,
	}, nil
}

// Next selects a template for a.Handle and composes the meme.
func (c *Composer) Next(ctx context.Context, a Analysis) (*Meme, error) {
	return c.NextThen(ctx, a, nil)
}

// NextThen composes the next meme for a.Handle and passes it to deliver. The
// template choice is recorded only after deliver succeeds, so a failed export
// leaves the remix order where it was. A nil deliver always succeeds.
func (c *Composer) NextThen(ctx context.Context, a Analysis, deliver func(*Meme) error) (*Meme, error) {
	sel, err := c.choose(ctx, a.Handle)
	if err != nil {
		return nil, err
	}
	meme, err := c.Compose(a, sel.index)
	if err != nil {
		return nil, err
	}
	if deliver != nil {
		if err := deliver(meme); err != nil {
			return nil, err
		}
	}
	if err := c.record(ctx, sel); err != nil {
		return nil, err
	}
	return meme, nil
}

// Seen reports whether handle has been composed before; a history error counts as unseen.
func (c *Composer) Seen(ctx context.Context, handle string) bool {
	ok, err := c.history.HasSeen(ctx, models.HandleKey(handle))
	return err == nil && ok
}
