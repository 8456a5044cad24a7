// Package audit はRBFのフィット履歴をSQLiteに記録する。
//
// 学習データそのものは保存せず、誰がいつどの操作を何点で実行し、
// どの結果になったかのみを残す。設定で audit_db が空の場合は使用しない。
package audit
