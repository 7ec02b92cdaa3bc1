// Package parser extracts battle fields from the raw record markup.
//
// The markup is loosely XML: a <BATTLE> element with a numeric time attribute
// and a note attribute, user elements carrying rlogin_utf8, and pickup events
// written as <a t="8" txt="label" count="n">. Records are not well formed, so
// they are read with the HTML tokenizer as a flat tag stream. No tree is built:
// tree construction re-opens unclosed <a> elements and would repeat pickups.
package parser

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"battle-tracker/internal/domain"

	"golang.org/x/net/html"
)

var (
	ErrParse          = errors.New("battle parse failed")
	ErrNoTimestamp    = fmt.Errorf("%w: no timestamp", ErrParse)
	ErrNoParticipants = fmt.Errorf("%w: no participants", ErrParse)
)

const (
	// logins starting with this are system accounts
	systemLoginPrefix = "$"
	pickupTag         = "a"
	pickupEventType   = "8"
)

type scan struct {
	timestamp    time.Time
	hasTimestamp bool
	note         string
	hasNote      bool
	participants []string
	seen         map[string]struct{}
	pickups      []domain.PickupEvent
}

// Parse returns the parsed battle. The record id is left for the caller.
func Parse(content string) (*domain.ParsedBattle, error) {
	s := &scan{seen: make(map[string]struct{})}

	z := html.NewTokenizer(strings.NewReader(content))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return nil, fmt.Errorf("%w: %v", ErrParse, err)
			}
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		s.visit(z.Token())
	}

	if !s.hasTimestamp {
		return nil, ErrNoTimestamp
	}
	if len(s.participants) == 0 {
		return nil, ErrNoParticipants
	}

	return &domain.ParsedBattle{
		Record: domain.BattleRecord{
			Timestamp: s.timestamp,
			Location:  location(s.note, s.hasNote),
			Raw:       content,
		},
		Participants: s.participants,
		Pickups:      s.pickups,
	}, nil
}

func (s *scan) visit(tok html.Token) {
	attrs := make(map[string]string, len(tok.Attr))
	for _, a := range tok.Attr {
		if _, dup := attrs[a.Key]; !dup {
			attrs[a.Key] = a.Val
		}
	}

	if raw, ok := attrs["time"]; ok && !s.hasTimestamp {
		if secs, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil && secs >= 0 {
			s.timestamp = time.Unix(secs, 0).UTC()
			s.hasTimestamp = true
		}
	}

	if note, ok := attrs["note"]; ok && !s.hasNote && note != "" {
		s.note = note
		s.hasNote = true
	}

	if login, ok := attrs["rlogin_utf8"]; ok {
		s.addParticipant(login)
	}

	if tok.Data == pickupTag && attrs["t"] == pickupEventType {
		if ev, ok := pickup(attrs); ok {
			s.pickups = append(s.pickups, ev)
		}
	}
}

func (s *scan) addParticipant(login string) {
	if login == "" || strings.HasPrefix(login, systemLoginPrefix) {
		return
	}
	if _, dup := s.seen[login]; dup {
		return
	}
	s.seen[login] = struct{}{}
	s.participants = append(s.participants, login)
}

func pickup(attrs map[string]string) (domain.PickupEvent, bool) {
	label := attrs["txt"]
	if label == "" {
		return domain.PickupEvent{}, false
	}
	raw, ok := attrs["count"]
	if !ok {
		return domain.PickupEvent{}, false
	}
	count, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || count < 0 {
		return domain.PickupEvent{}, false
	}
	return domain.PickupEvent{ItemLabel: label, Count: count}, true
}

// location keeps the first two comma separated parts of the note.
func location(note string, ok bool) string {
	if !ok {
		return domain.UnknownLocation
	}
	parts := strings.Split(note, ",")
	if len(parts) < 2 {
		return domain.UnknownLocation
	}
	x, y := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if x == "" || y == "" {
		return domain.UnknownLocation
	}
	return x + "," + y
}
