// Package model はドメインモデルを定義する。
package model

import "time"

// Profile はカタログ上のユーザープロフィールを表す。
// IDは外部Identity Providerのユーザー識別子（UUID）と同一で、
// 同一ユーザーにつき最大1行（主キー制約で担保）。
// 初回寄稿時に遅延作成され、このパイプラインからは削除されない。
type Profile struct {
	ID          string
	DisplayName string
	AvatarURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
