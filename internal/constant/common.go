package constant

const (
	ProductionEnvironment = "production"
)
