// geology-engineのエントリポイント。
// RBF補間APIのHTTPサーバーと、開発用トークン発行・ヘルスチェックのコマンドを提供する。
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
