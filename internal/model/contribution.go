// Package model はドメインモデルを定義する。
package model

import "time"

// Contribution は共有カタログに取り込まれた1件の画像を表す。
// パイプライン成功ごとに1行だけ作成され、以後変更されない。
// ProfileIDはスキーマ上nullableだが、現行の認証必須ポリシーでは
// 常に寄稿者のプロフィールIDが設定される。
type Contribution struct {
	ID        string
	ProfileID *string
	Prompt    string
	ImageURL  string
	Embedding []float32
	CreatedAt time.Time
}
