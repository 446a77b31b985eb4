// Package migrations 打包了数据库迁移脚本，二进制部署时不依赖工作目录。
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
