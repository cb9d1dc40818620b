package counterparties

import (
	"strings"
	"time"
	"unicode"
)

// Counterparty — контрагент, к которому привязан пользователь Telegram.
type Counterparty struct {
	ID          int64
	Code        string
	Name        string
	Warehouse   string
	PhoneNumber string
	TelegramID  *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NormalizePhone оставляет только цифры: "+38 (050) 123-45-67" -> "380501234567".
// Номер без кода страны (0501234567) дополняется до украинского формата.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	p := b.String()
	if len(p) == 10 && strings.HasPrefix(p, "0") {
		p = "38" + p
	}
	return p
}
