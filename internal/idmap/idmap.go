// Package idmap はドキュメントストアのオブジェクトIDを
// リレーショナルストアのUUID形式に変換する。
//
// 変換はルックアップテーブルを持たない純粋関数で、同じ入力には
// プロセスや実行回数に関係なく常に同じ出力を返す。
package idmap

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hitoshi/castmigrate/internal/model"
)

// objectIDLen はオブジェクトIDの16進文字列長。
const objectIDLen = 24

// Mapper はオブジェクトIDをUUID文字列に変換する。
type Mapper interface {
	// Map は24桁の16進オブジェクトIDをUUID文字列に変換する。
	// 空文字列には空文字列を返す。不正な入力にはmodel.ErrInvalidObjectIDを返す。
	Map(objectID string) (string, error)
}

// Strategy はID変換方式の名前。
type Strategy string

const (
	// StrategyPositional は16進の位置ウィンドウをUUIDの各グループに割り当てる方式。
	StrategyPositional Strategy = "positional"
	// StrategySHA1 はオブジェクトIDのSHA-1ハッシュからUUIDを生成する方式。
	StrategySHA1 Strategy = "sha1"
)

// ParseStrategy は設定値から変換方式を選択する。
func ParseStrategy(name string) (Mapper, error) {
	switch Strategy(strings.ToLower(name)) {
	case StrategyPositional, "":
		return Positional{}, nil
	case StrategySHA1:
		return NewSHA1(Namespace), nil
	default:
		return nil, fmt.Errorf("unknown id strategy: %q", name)
	}
}

// Positional はオブジェクトIDの16進ウィンドウをそのままUUIDの各グループに並べる。
// 先頭8文字はソースIDの先頭8文字と一致する。
// 衝突耐性はソースIDのウィンドウ分布に依存し、暗号学的ハッシュではない。
type Positional struct{}

// Map は hex[0:8]-hex[8:12]-hex[12:16]-hex[16:20]-hex[20:24]+hex[0:8] を返す。
func (Positional) Map(objectID string) (string, error) {
	if objectID == "" {
		return "", nil
	}
	h, err := normalize(objectID)
	if err != nil {
		return "", err
	}
	return h[0:8] + "-" + h[8:12] + "-" + h[12:16] + "-" + h[16:20] + "-" + h[20:24] + h[0:8], nil
}

// Namespace はSHA1方式のUUID名前空間。
var Namespace = uuid.MustParse("0f6d6a8e-3c1b-5e55-9c2e-6d0b6f1d2a7c")

// SHA1 はオブジェクトIDの名前ベースUUID（バージョン5）を生成する。
type SHA1 struct {
	namespace uuid.UUID
}

// NewSHA1 は指定した名前空間を使うSHA1マッパーを生成する。
func NewSHA1(namespace uuid.UUID) SHA1 {
	return SHA1{namespace: namespace}
}

// Map はオブジェクトIDの正規化済み16進文字列からUUIDを生成する。
func (s SHA1) Map(objectID string) (string, error) {
	if objectID == "" {
		return "", nil
	}
	h, err := normalize(objectID)
	if err != nil {
		return "", err
	}
	return uuid.NewSHA1(s.namespace, []byte(h)).String(), nil
}

// MapObjectID はprimitive.ObjectIDを変換する。NilObjectIDには空文字列を返す。
func MapObjectID(m Mapper, id primitive.ObjectID) (string, error) {
	if id.IsZero() {
		return "", nil
	}
	return m.Map(id.Hex())
}

func normalize(objectID string) (string, error) {
	h := strings.ToLower(objectID)
	if len(h) != objectIDLen {
		return "", fmt.Errorf("%w: %q has length %d", model.ErrInvalidObjectID, objectID, len(objectID))
	}
	if _, err := hex.DecodeString(h); err != nil {
		return "", fmt.Errorf("%w: %q is not hex", model.ErrInvalidObjectID, objectID)
	}
	return h, nil
}
