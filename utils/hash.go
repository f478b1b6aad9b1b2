package utils

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
)

var md5Pattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// BytesMD5 计算字节数组MD5
func BytesMD5(data []byte) string {
	hash := md5.Sum(data)
	return hex.EncodeToString(hash[:])
}

// IsMD5 判断是否为小写十六进制MD5
func IsMD5(s string) bool {
	return md5Pattern.MatchString(s)
}
