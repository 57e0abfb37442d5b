package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Message is a composed mail, ready for a Transport.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
	Date    time.Time
}

const DefaultSubject = "New SGS apartments"

// Compose renders one digest into a single message. It does not touch the
// store.
func Compose(d Digest, from, subject string, date time.Time) Message {
	if subject == "" {
		subject = DefaultSubject
	}
	parts := make([]string, 0, len(d.Entries))
	for _, e := range d.Entries {
		parts = append(parts, FormatEntry(e))
	}
	return Message{
		From:    from,
		To:      d.Subscription.Email,
		Subject: subject,
		Body:    strings.Join(parts, "\n"),
		Date:    date,
	}
}

// FormatEntry renders one apartment:
//
//	Main St 1 - Centrum (free from 1 Sep):
//	1 rum | 30m² | 7000 SEK
//	To Central: 18min | To Campus: 25min
//	https://...
//
// The travel line is left out when no duration is known.
func FormatEntry(e Entry) string {
	a := e.Apartment
	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s (free from %s):\n", a.Address, a.Location, a.FreeFrom.Format("2 Jan"))
	fmt.Fprintf(&b, "%s | %sm² | %d SEK\n", a.Size, strconv.FormatFloat(a.Area, 'f', -1, 64), a.Rent)
	if len(e.Travel) > 0 {
		legs := make([]string, 0, len(e.Travel))
		for _, tt := range e.Travel {
			legs = append(legs, fmt.Sprintf("To %s: %dmin", tt.Destination, tt.Minutes))
		}
		b.WriteString(strings.Join(legs, " | "))
		b.WriteByte('\n')
	}
	b.WriteString(a.URL)
	b.WriteByte('\n')
	return b.String()
}
