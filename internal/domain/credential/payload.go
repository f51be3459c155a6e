package credential

import (
	"encoding/base64"
	"errors"

	"github.com/fxamacker/cbor/v2"
)

var ErrInvalidPayload = errors.New("QRペイロードが不正です")

// Payload は利用者の画面にQRコードとして表示する内容。
// 表示専用であり、入場可否の判断には使わない。
type Payload struct {
	TicketID string `cbor:"1,keyasint" json:"ticket_id"`
	EventID  string `cbor:"2,keyasint" json:"event_id"`
	UserID   string `cbor:"3,keyasint" json:"user_id"`
	Code     string `cbor:"4,keyasint" json:"code"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("credential: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic("credential: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode はペイロードをQRコードに埋め込む文字列へ変換する
func (p Payload) Encode() (string, error) {
	b, err := encMode.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodePayload は Encode で作られた文字列を復元する
func DecodePayload(s string) (Payload, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Payload{}, ErrInvalidPayload
	}
	var p Payload
	if err := decMode.Unmarshal(b, &p); err != nil {
		return Payload{}, ErrInvalidPayload
	}
	return p, nil
}
