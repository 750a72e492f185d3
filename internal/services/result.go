// internal/services/result.go
package services

// Source 标识结果来自真实响应、降级默认值还是演示数据
type Source string

const (
	SourceLive     Source = "live"
	SourceFallback Source = "fallback"
	SourceMock     Source = "mock"
)

// Result 远程分析的结果；调用方永远拿到一个可用的值
type Result[T any] struct {
	Value  T      `json:"value"`
	Source Source `json:"source"`
}

func live[T any](v T) Result[T]     { return Result[T]{Value: v, Source: SourceLive} }
func fallback[T any](v T) Result[T] { return Result[T]{Value: v, Source: SourceFallback} }
func mock[T any](v T) Result[T]     { return Result[T]{Value: v, Source: SourceMock} }

// IsLive 是否为真实数据
func (r Result[T]) IsLive() bool { return r.Source == SourceLive }
