package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/chainpay-next/internal/constants"

	"github.com/shopspring/decimal"
)

// ErrAmountPrecision 金额小数位超过账本单位精度
var ErrAmountPrecision = errors.New("amount exceeds ledger unit precision")

// Amount 链上货币金额（主单位，保留 18 位小数）
type Amount struct {
	decimal.Decimal
}

// NewAmountFromDecimal 从 decimal 创建金额
func NewAmountFromDecimal(amount decimal.Decimal) Amount {
	return Amount{Decimal: amount}
}

// Wei 换算为账本最小单位；小数位超出 18 位时报错而不是四舍五入
func (a Amount) Wei() (Wei, error) {
	shifted := a.Decimal.Shift(constants.LedgerUnitDecimals)
	if !shifted.IsInteger() {
		return Wei{}, ErrAmountPrecision
	}
	return NewWeiFromBigInt(shifted.BigInt()), nil
}

// MarshalJSON 统一输出字符串，避免 JSON 数字精度丢失
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Decimal.String())
}

// UnmarshalJSON 解析金额（字符串或数字）
func (a *Amount) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	a.Decimal = d
	return nil
}

// Value 用于数据库写入
func (a Amount) Value() (driver.Value, error) {
	return a.Decimal.Value()
}

// Scan 用于数据库读取
func (a *Amount) Scan(value interface{}) error {
	return a.Decimal.Scan(value)
}

// String 返回十进制表示
func (a Amount) String() string {
	return a.Decimal.String()
}

// Wei 账本最小单位整数金额（wei）
// 存储为十进制字符串，数值范围不受 int64 限制。
type Wei struct {
	value big.Int
}

// NewWeiFromBigInt 从 big.Int 创建，入参会被拷贝
func NewWeiFromBigInt(v *big.Int) Wei {
	var w Wei
	if v != nil {
		w.value.Set(v)
	}
	return w
}

// NewWeiFromString 从十进制字符串创建
func NewWeiFromString(s string) (Wei, error) {
	var w Wei
	if _, ok := w.value.SetString(s, 10); !ok {
		return Wei{}, fmt.Errorf("invalid wei value: %q", s)
	}
	return w, nil
}

// BigInt 返回数值拷贝
func (w Wei) BigInt() *big.Int {
	return new(big.Int).Set(&w.value)
}

// Cmp 与另一数值比较，语义同 big.Int.Cmp
func (w Wei) Cmp(other *big.Int) int {
	if other == nil {
		other = new(big.Int)
	}
	return w.value.Cmp(other)
}

// String 返回十进制表示
func (w Wei) String() string {
	return w.value.String()
}

// MarshalJSON 输出字符串，wei 超出 float64 可精确表示的范围
func (w Wei) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.value.String())
}

// UnmarshalJSON 解析 wei（字符串或整数）
func (w *Wei) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	if _, ok := w.value.SetString(s, 10); !ok {
		return fmt.Errorf("invalid wei value: %q", s)
	}
	return nil
}

// Value 用于数据库写入
func (w Wei) Value() (driver.Value, error) {
	return w.value.String(), nil
}

// Scan 用于数据库读取
func (w *Wei) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		w.value.SetInt64(0)
		return nil
	case string:
		if _, ok := w.value.SetString(v, 10); !ok {
			return fmt.Errorf("invalid wei value: %q", v)
		}
		return nil
	case []byte:
		if _, ok := w.value.SetString(string(v), 10); !ok {
			return fmt.Errorf("invalid wei value: %q", string(v))
		}
		return nil
	case int64:
		w.value.SetInt64(v)
		return nil
	default:
		return fmt.Errorf("unsupported wei scan type %T", value)
	}
}
