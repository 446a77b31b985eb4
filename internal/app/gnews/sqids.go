package gnews

import (
	"errors"
	"sync"

	"github.com/sqids/sqids-go"
)

var ErrInvalidID = errors.New("invalid resolution id")

var (
	sq   *sqids.Sqids
	once sync.Once
)

func getSqids() *sqids.Sqids {
	once.Do(func() {
		var err error
		sq, err = sqids.New(sqids.Options{
			Alphabet:  "Hq8vN2xKcT5mWbZ3rLpY7aJfD9sGkE4uQeC6nXhR0tVyBwM1iAgFoPdSzUjIlO",
			MinLength: 5,
		})
		if err != nil {
			panic("sqids init failed: " + err.Error())
		}
	})
	return sq
}

// EncodeID 把自增主键编码成对外暴露的 id，避免直接暴露数据库 id。
func EncodeID(id int64) (string, error) {
	if id <= 0 {
		return "", ErrInvalidID
	}
	return getSqids().Encode([]uint64{uint64(id)})
}

// DecodeID 是 EncodeID 的逆运算。sqids 对任意字符串都会"解码"出数字，
// 所以要重新编码一遍比对，拒绝非规范写法。
func DecodeID(public string) (int64, error) {
	nums := getSqids().Decode(public)
	if len(nums) != 1 || nums[0] == 0 {
		return 0, ErrInvalidID
	}
	again, err := getSqids().Encode(nums)
	if err != nil || again != public {
		return 0, ErrInvalidID
	}
	return int64(nums[0]), nil
}
