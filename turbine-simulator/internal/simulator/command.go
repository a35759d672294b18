package simulator

import "encoding/json"

// Truthy 将命令的 value 转换为布尔值
//   - bool: 原值
//   - number: 非 0 为 true
//   - string: 非空为 true，"false" / "0" 也是 true
//   - null / 缺省: false
//   - object / array: true
func Truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}

	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}
