package imagegen

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"dailyvote-bot/service"
)

// ErrNoPrompts no prompts are configured
var ErrNoPrompts = errors.New("no prompts configured")

// StaticPrompts picks prompts at random from a fixed list.
//
// A list item may carry its own caption as "caption|prompt"; otherwise the
// prompt doubles as caption.
type StaticPrompts struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	prompts []service.Prompt
}

// NewStaticPrompts parses items. rnd may be nil.
func NewStaticPrompts(items []string, rnd *rand.Rand) *StaticPrompts {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	sp := &StaticPrompts{rnd: rnd}
	for _, item := range items {
		if p, ok := parsePrompt(item); ok {
			sp.prompts = append(sp.prompts, p)
		}
	}
	return sp
}

func parsePrompt(item string) (service.Prompt, bool) {
	item = strings.TrimSpace(item)
	if item == "" {
		return service.Prompt{}, false
	}
	if caption, text, ok := strings.Cut(item, "|"); ok {
		caption, text = strings.TrimSpace(caption), strings.TrimSpace(text)
		if text == "" {
			return service.Prompt{}, false
		}
		if caption == "" {
			caption = text
		}
		return service.Prompt{Text: text, Caption: caption}, true
	}
	return service.Prompt{Text: item, Caption: item}, true
}

// Prompts returns up to n distinct prompts in random order.
func (s *StaticPrompts) Prompts(_ context.Context, n int) ([]service.Prompt, error) {
	if len(s.prompts) == 0 {
		return nil, ErrNoPrompts
	}
	if n > len(s.prompts) {
		n = len(s.prompts)
	}

	s.mu.Lock()
	order := s.rnd.Perm(len(s.prompts))
	s.mu.Unlock()

	out := make([]service.Prompt, 0, n)
	for _, i := range order[:n] {
		out = append(out, s.prompts[i])
	}
	return out, nil
}
