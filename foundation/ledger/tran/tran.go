// Package tran defines the transaction records stored inside a block. The
// ledger treats transactions as opaque payloads submitted by the platform
// collaborators, but the well known types carry strict fields so the rest
// of the system keeps type safety on the paths it understands.
package tran

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Set of transaction types recorded by the platform collaborators. Any
// other type is accepted and carried through untouched.
const (
	TypeGenesis        = "genesis"
	TypeCertificate    = "certificate_issued"
	TypeCreditsAdded   = "credits_added"
	TypeCreditTransfer = "credit_transfer"
	TypeContractDeploy = "contract_deployment"
	TypeEscrowCreated  = "escrow_created"
	TypeEscrowReleased = "escrow_released"
	TypeDemo           = "demo_transaction"
)

// Tx represents a single transaction record. The known fields are strict
// and optional. Fields the ledger doesn't understand are preserved in
// Extra so they round-trip through persistence byte for byte.
type Tx struct {
	Type             string
	CertificateID    string
	UserID           int64
	FromUserID       int64
	ToUserID         int64
	Amount           float64
	HydrogenAmount   float64
	ProductionMethod string
	Source           string
	Message          string
	TimeStamp        string
	Extra            map[string]json.RawMessage
}

// Participant reports whether the specified participant id is a party to
// this transaction, either as the acting user or as one of the sides of
// a transfer.
func (tx Tx) Participant(id int64) bool {
	return tx.UserID == id || tx.FromUserID == id || tx.ToUserID == id
}

// MarshalJSON implements the json.Marshaler interface. Fields are written
// in ascending key order so the encoding is deterministic and can be used
// as hash input.
func (tx Tx) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage)

	put := func(name string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal field %q: %w", name, err)
		}
		fields[name] = data
		return nil
	}

	if tx.Type != "" {
		if err := put("type", tx.Type); err != nil {
			return nil, err
		}
	}
	if tx.CertificateID != "" {
		if err := put("certificate_id", tx.CertificateID); err != nil {
			return nil, err
		}
	}
	if tx.UserID != 0 {
		if err := put("user_id", tx.UserID); err != nil {
			return nil, err
		}
	}
	if tx.FromUserID != 0 {
		if err := put("from_user_id", tx.FromUserID); err != nil {
			return nil, err
		}
	}
	if tx.ToUserID != 0 {
		if err := put("to_user_id", tx.ToUserID); err != nil {
			return nil, err
		}
	}
	if tx.Amount != 0 {
		if err := put("amount", tx.Amount); err != nil {
			return nil, err
		}
	}
	if tx.HydrogenAmount != 0 {
		if err := put("hydrogen_amount", tx.HydrogenAmount); err != nil {
			return nil, err
		}
	}
	if tx.ProductionMethod != "" {
		if err := put("production_method", tx.ProductionMethod); err != nil {
			return nil, err
		}
	}
	if tx.Source != "" {
		if err := put("source", tx.Source); err != nil {
			return nil, err
		}
	}
	if tx.Message != "" {
		if err := put("message", tx.Message); err != nil {
			return nil, err
		}
	}
	if tx.TimeStamp != "" {
		if err := put("timestamp", tx.TimeStamp); err != nil {
			return nil, err
		}
	}

	for k, v := range tx.Extra {
		if _, exists := fields[k]; exists {
			return nil, fmt.Errorf("extra field %q collides with a known field", k)
		}

		var compact bytes.Buffer
		if err := json.Compact(&compact, v); err != nil {
			return nil, fmt.Errorf("extra field %q: %w", k, err)
		}
		fields[k] = compact.Bytes()
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(fields[k])
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface. Known fields are
// decoded strictly, everything else lands in Extra.
func (tx *Tx) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	take := func(name string, v any) error {
		field, exists := raw[name]
		if !exists {
			return nil
		}
		if err := json.Unmarshal(field, v); err != nil {
			return fmt.Errorf("unmarshal field %q: %w", name, err)
		}
		delete(raw, name)
		return nil
	}

	*tx = Tx{}

	if err := take("type", &tx.Type); err != nil {
		return err
	}
	if err := take("certificate_id", &tx.CertificateID); err != nil {
		return err
	}
	if err := take("user_id", &tx.UserID); err != nil {
		return err
	}
	if err := take("from_user_id", &tx.FromUserID); err != nil {
		return err
	}
	if err := take("to_user_id", &tx.ToUserID); err != nil {
		return err
	}
	if err := take("amount", &tx.Amount); err != nil {
		return err
	}
	if err := take("hydrogen_amount", &tx.HydrogenAmount); err != nil {
		return err
	}
	if err := take("production_method", &tx.ProductionMethod); err != nil {
		return err
	}
	if err := take("source", &tx.Source); err != nil {
		return err
	}
	if err := take("message", &tx.Message); err != nil {
		return err
	}
	if err := take("timestamp", &tx.TimeStamp); err != nil {
		return err
	}

	if len(raw) > 0 {
		tx.Extra = raw
	}

	return nil
}

// CanonicalJSON returns the deterministic encoding of an ordered set of
// transactions. The element order is preserved and every object's keys are
// sorted, so the same transactions always produce the same bytes.
func CanonicalJSON(trans []Tx) (string, error) {
	if trans == nil {
		trans = []Tx{}
	}

	data, err := json.Marshal(trans)
	if err != nil {
		return "", fmt.Errorf("marshal transactions: %w", err)
	}

	return string(data), nil
}
