package constants

const (
	DatabaseTypePostgreSQL = "postgresql"
	DatabaseTypeMySQL      = "mysql"
	DatabaseTypeClickhouse = "clickhouse"
)

// DialectName is the human readable SQL dialect passed to prompts.
func DialectName(dbType string) string {
	switch dbType {
	case DatabaseTypeMySQL:
		return "MySQL"
	case DatabaseTypeClickhouse:
		return "ClickHouse"
	default:
		return "PostgreSQL"
	}
}
