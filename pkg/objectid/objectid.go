// Package objectid 提供了 24 位十六进制对话标识符的生成与校验。
package objectid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"regexp"
	"sync/atomic"
	"time"
)

// 编码布局与 MongoDB ObjectId 保持兼容：
// 4 字节 Unix 秒级时间戳 + 5 字节随机数 + 3 字节自增计数器，共 12 字节。
var randRead = rand.Read

var counter = func() *uint32 {
	var b [4]byte
	if _, err := randRead(b[:]); err != nil {
		seed := uint32(time.Now().UnixNano())
		c := seed
		return &c
	}
	c := binary.BigEndian.Uint32(b[:])
	return &c
}()

var hexPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// New 生成一个新的 24 位十六进制标识符。
func New() string {
	var raw [12]byte
	binary.BigEndian.PutUint32(raw[0:4], uint32(time.Now().Unix()))
	if _, err := randRead(raw[4:9]); err != nil {
		// 随机源异常时退化为纳秒时间戳填充，只覆盖随机段，保留时间戳段
		ns := uint64(time.Now().UnixNano())
		for i := 8; i >= 4; i-- {
			raw[i] = byte(ns)
			ns >>= 8
		}
	}
	n := atomic.AddUint32(counter, 1)
	raw[9] = byte(n >> 16)
	raw[10] = byte(n >> 8)
	raw[11] = byte(n)
	return hex.EncodeToString(raw[:])
}

// IsValid 校验给定字符串是否为合法的 24 位十六进制标识符。
// 非法标识符必须在任何存储访问之前被拒绝。
func IsValid(id string) bool {
	return hexPattern.MatchString(id)
}

// Timestamp 解析标识符中的创建时间戳；非法标识符返回零值时间。
func Timestamp(id string) time.Time {
	if !IsValid(id) {
		return time.Time{}
	}
	raw, err := hex.DecodeString(id)
	if err != nil {
		return time.Time{}
	}
	secs := binary.BigEndian.Uint32(raw[0:4])
	return time.Unix(int64(secs), 0)
}
