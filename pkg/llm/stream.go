package llm

import (
	"context"
	"strings"
	"time"
)

// StreamWords writes text one space-separated word at a time, each followed
// by a single space, pausing between words. It stops early when ctx is done
// or write fails.
func StreamWords(ctx context.Context, text string, pause time.Duration, write func(chunk string) error) error {
	words := strings.Split(text, " ")

	for i, word := range words {
		if err := write(word + " "); err != nil {
			return err
		}
		if i == len(words)-1 || pause <= 0 {
			continue
		}

		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// UTF16Len counts UTF-16 code units, the length browsers report for text.
// Lengths shown to clients and pacing derived from text use it.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
