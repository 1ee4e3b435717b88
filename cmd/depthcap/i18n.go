// Package main provides localization for the depthcap CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Configuration": "設定",
		"Output":        "出力先",
		"Capture":       "キャプチャ",
		"Status":        "ステータス",
		"Logging":       "ログ",

		// Root command
		"Capture synchronized frame sets from a stereo depth device":                                      "ステレオ深度カメラから同期したフレームセットをキャプチャ",
		"depthcap groups frames from every stream into time-aligned sets and saves one image per stream.": "depthcapは各ストリームのフレームを時刻の揃ったセットにまとめ、ストリームごとに画像を保存します。",

		// Capture command
		"Capture frame sets until stopped": "停止されるまでフレームセットをキャプチャ",
		"Capture synchronized frame sets and save them until interrupted, stopped over HTTP, or the duration elapses.": "中断、HTTPでの停止、または指定時間の経過まで同期フレームセットをキャプチャして保存します。",

		// Config command
		"Print the effective configuration as YAML": "有効な設定をYAMLで表示",
		"YAML configuration file":                   "YAML設定ファイル",

		// Version command
		"Show version information": "バージョン情報を表示",
		"depthcap version %s":      "depthcap バージョン %s",

		// Output flags
		"Directory for saved images":                    "画像の保存先ディレクトリ",
		"Image format (png, tiff, bmp)":                 "画像形式（png, tiff, bmp）",
		"Write a JSON metadata file per set":            "セットごとにJSONメタデータを書き出す",
		"Write a contact sheet PNG per set":             "セットごとに一覧PNGを書き出す",
		"Run the pipeline without writing images":       "画像を書き込まずにパイプラインを実行",
		"Write a Markdown summary to this path on exit": "終了時にMarkdownのサマリーをこのパスに書き出す",

		// Capture flags
		"Minimum time between saved sets (0 saves every set)":   "保存するセットの最小間隔（0ですべて保存）",
		"Consecutive save failures before capture stops":        "キャプチャを停止するまでの連続保存失敗回数",
		"Sets held between stages before the oldest is dropped": "最も古いセットを破棄するまでにステージ間で保持するセット数",
		"Stop after this long (0 runs until interrupted)":       "この時間の経過後に停止（0で中断まで実行）",

		// Status flags
		"Serve status and stop endpoints on this address (e.g. :8080)": "このアドレスでステータスと停止のエンドポイントを提供（例: :8080）",

		// Logging flags
		"Log level (debug, info, warn, error)": "ログレベル（debug, info, warn, error）",
		"Suppress all log output":              "すべてのログ出力を抑制",

		// Errors
		"capture failed": "キャプチャが失敗しました",
	})
}
