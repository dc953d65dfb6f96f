package domain

import "time"

// Clock 抽象当前时间，TTL 和过期判断都通过它获取时间
type Clock interface {
	Now() time.Time
}

// SystemClock 使用系统 UTC 时间
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
