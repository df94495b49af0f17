package domain

import (
	"fmt"
	"time"
)

// Policy é a política de janela fixa aplicada a um endpoint protegido.
//
// Imutável depois de validada. Rotas diferentes podem usar políticas diferentes;
// rotas que compartilham o mesmo ID compartilham também os contadores.
type Policy struct {
	ID          string
	MaxRequests int64
	Window      time.Duration
}

// Validate rejeita políticas que não podem ser aplicadas, antes de qualquer
// chamada ao store. O erro retornado sempre embrulha ErrInvalidPolicy.
func (p Policy) Validate() error {
	if !validPolicyID(p.ID) {
		return fmt.Errorf("%w: id %q must be non-empty and use only [A-Za-z0-9_.-]", ErrInvalidPolicy, p.ID)
	}
	if p.MaxRequests <= 0 {
		return fmt.Errorf("%w: %s: max requests must be > 0, got %d", ErrInvalidPolicy, p.ID, p.MaxRequests)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: %s: window must be > 0, got %s", ErrInvalidPolicy, p.ID, p.Window)
	}
	// o store trabalha em milissegundos (PEXPIRE/PTTL)
	if p.Window%time.Millisecond != 0 {
		return fmt.Errorf("%w: %s: window must be a whole number of milliseconds, got %s", ErrInvalidPolicy, p.ID, p.Window)
	}
	return nil
}

func (p Policy) String() string {
	return fmt.Sprintf("%s(%d/%s)", p.ID, p.MaxRequests, p.Window)
}

// O ID nunca contém ':' e por isso (ID, identidade) -> chave é injetivo.
func validPolicyID(id string) bool {
	if id == "" {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_', c == '.', c == '-':
		default:
			return false
		}
	}
	return true
}

// FailureMode define o que a rota faz quando o store está indisponível.
type FailureMode int

const (
	// FailClosed rejeita a requisição (503). É o padrão.
	FailClosed FailureMode = iota
	// FailOpen deixa a requisição passar sem contagem.
	FailOpen
)

func (m FailureMode) String() string {
	if m == FailOpen {
		return "fail-open"
	}
	return "fail-closed"
}

// ParseFailureMode aceita "open"/"fail-open" e "closed"/"fail-closed".
func ParseFailureMode(s string) (FailureMode, error) {
	switch s {
	case "", "closed", "fail-closed", "fail_closed":
		return FailClosed, nil
	case "open", "fail-open", "fail_open":
		return FailOpen, nil
	default:
		return FailClosed, fmt.Errorf("unknown failure mode %q", s)
	}
}
