package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Controller lifecycle
		"Capture started: %d streams, interval %v":                "キャプチャを開始しました: %d ストリーム, 間隔 %v",
		"Capture stopped: %d sets persisted, %d failed":           "キャプチャを停止しました: %d セット保存, %d 件失敗",
		"Capture failed: %v":                                      "キャプチャが失敗しました: %v",
		"Interrupted, shutting down...":                           "中断されました。シャットダウン中...",
		"Draining":                                                "残りのセットを処理中",
		"Flush timed out after %v":                                "%v 経過したためフラッシュを打ち切りました",
		"Persistence did not stop within %v, ignoring its result": "%v 以内に保存処理が停止しなかったため結果を無視します",
		"Discarded %d queued sets after persistence failure":      "保存失敗のためキュー内の %d セットを破棄しました",

		// Sources
		"Stream %s: %v": "ストリーム %s: %v",

		// Synchronizer
		"Set %d complete, span %v":                      "セット %d 完成, 時間差 %v",
		"Partial set %d: missing %v":                    "不完全なセット %d: %v が欠落",
		"Dropped frame %s #%d: superseded by #%d":       "フレーム %s #%d を破棄: #%d で置き換え",
		"Dropped frame %s #%d: older than pending #%d":  "フレーム %s #%d を破棄: 保留中の #%d より古い",
		"Dropped frame %s #%d: out of order (last #%d)": "フレーム %s #%d を破棄: 順序が不正 (直前 #%d)",
		"Ignoring frame from unknown stream %s":         "未知のストリーム %s のフレームを無視します",
		"Hand-off queue full, dropped set %d":           "受け渡しキューが満杯のためセット %d を破棄しました",

		// Dispatch and persistence
		"Cadence skipped set %d":              "間隔調整のためセット %d をスキップしました",
		"Persist queue full, dropped set %d":  "保存キューが満杯のためセット %d を破棄しました",
		"Failed to persist set %d: %v":        "セット %d の保存に失敗しました: %v",
		"Persisted set %d: %d files in %v":    "セット %d を保存しました: %d ファイル, %v",
		"Saved set %d (%d files)":             "セット %d を保存しました (%d ファイル)",
		"Saved set %d (%d files, missing %v)": "セット %d を保存しました (%d ファイル, %v が欠落)",
		"Could not remove temp file %s: %v":   "一時ファイル %s を削除できませんでした: %v",

		// Simulated device
		"Simulated device started with %d streams": "%d ストリームでシミュレーションデバイスを開始しました",
		"Stream %s stalled":                        "ストリーム %s が停止しました",
		"Stream %s resumed":                        "ストリーム %s が再開しました",
		"Device link lost: %v":                     "デバイスとの接続が切れました: %v",

		// Status server
		"Status server listening on %s":    "ステータスサーバーが %s で待ち受け中",
		"Status server stopped":            "ステータスサーバーを停止しました",
		"Stop requested over HTTP from %s": "%s から HTTP で停止が要求されました",

		// CLI
		"Session %s":                      "セッション %s",
		"Writing %s images to %s":         "%s 画像を %s に書き込みます",
		"Dry run: frames are not written": "ドライラン: フレームは書き込まれません",
		"Status server failed: %v":        "ステータスサーバーでエラーが発生しました: %v",
		"Summary written to %s":           "サマリーを %s に書き込みました",
		"Could not write summary: %v":     "サマリーを書き込めませんでした: %v",
	})
}
