package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Prefix は認証コードのバージョン識別子
const Prefix = "TK1."

const (
	idLen     = 16
	timeLen   = 6
	nonceLen  = 8 // 64bit
	macLen    = 8
	bodyLen   = idLen + timeLen + nonceLen
	rawLen    = bodyLen + macLen
	minSecret = 16
)

var (
	ErrInvalidCredential = errors.New("認証コードが不正です")
	ErrSecretTooShort    = errors.New("認証コードの署名鍵は16バイト以上必要です")
)

// QRの英数字モードで表現できる文字だけを使う
var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Credential は発行された認証コードと表示用ペイロード
type Credential struct {
	Code    string
	Payload Payload
}

// Encoder はチケットの認証コードを発行・検証する。
// コードはチケットID・発行時刻・乱数を鍵付きBLAKE3で署名したもので、
// チケットIDだけからは推測できない。
type Encoder struct {
	key  [32]byte
	now  func() time.Time
	rand io.Reader
}

// NewEncoder は署名鍵から Encoder を作成する
func NewEncoder(secret []byte) (*Encoder, error) {
	if len(secret) < minSecret {
		return nil, ErrSecretTooShort
	}
	return &Encoder{
		key:  blake3.Sum256(secret),
		now:  time.Now,
		rand: rand.Reader,
	}, nil
}

// Mint はチケットの認証コードを発行する
func (e *Encoder) Mint(ticketID, eventID, userID string) (Credential, error) {
	id, err := uuid.Parse(ticketID)
	if err != nil {
		return Credential{}, fmt.Errorf("チケットIDが不正です: %w", err)
	}

	raw := make([]byte, rawLen)
	copy(raw[:idLen], id[:])
	putUint48(raw[idLen:idLen+timeLen], uint64(e.now().UnixMilli()))
	if _, err := io.ReadFull(e.rand, raw[idLen+timeLen:bodyLen]); err != nil {
		return Credential{}, fmt.Errorf("乱数の生成に失敗: %w", err)
	}
	mac, err := e.sign(raw[:bodyLen])
	if err != nil {
		return Credential{}, err
	}
	copy(raw[bodyLen:], mac)

	code := Prefix + encoding.EncodeToString(raw)
	return Credential{
		Code: code,
		Payload: Payload{
			TicketID: ticketID,
			EventID:  eventID,
			UserID:   userID,
			Code:     code,
		},
	}, nil
}

// Verify は認証コードの形式と署名を検証し、チケットIDを返す。
// 検証に通ってもチケットの存在や状態は保証しないため、必ず台帳で引き直すこと。
func (e *Encoder) Verify(code string) (string, error) {
	body, ok := strings.CutPrefix(strings.TrimSpace(code), Prefix)
	if !ok {
		return "", ErrInvalidCredential
	}
	raw, err := encoding.DecodeString(body)
	if err != nil || len(raw) != rawLen {
		return "", ErrInvalidCredential
	}
	mac, err := e.sign(raw[:bodyLen])
	if err != nil {
		return "", err
	}
	if subtle.ConstantTimeCompare(mac, raw[bodyLen:]) != 1 {
		return "", ErrInvalidCredential
	}
	id, err := uuid.FromBytes(raw[:idLen])
	if err != nil {
		return "", ErrInvalidCredential
	}
	return id.String(), nil
}

// IssuedAt は認証コードに含まれる発行時刻を返す
func (e *Encoder) IssuedAt(code string) (time.Time, error) {
	if _, err := e.Verify(code); err != nil {
		return time.Time{}, err
	}
	raw, _ := encoding.DecodeString(strings.TrimPrefix(strings.TrimSpace(code), Prefix))
	return time.UnixMilli(int64(uint48(raw[idLen : idLen+timeLen]))), nil
}

func (e *Encoder) sign(body []byte) ([]byte, error) {
	h, err := blake3.NewKeyed(e.key[:])
	if err != nil {
		return nil, fmt.Errorf("署名の初期化に失敗: %w", err)
	}
	h.Write(body)
	return h.Sum(nil)[:macLen], nil
}

func putUint48(b []byte, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	copy(b, buf[2:])
}

func uint48(b []byte) uint64 {
	var buf [8]byte
	copy(buf[2:], b)
	return binary.BigEndian.Uint64(buf[:])
}
