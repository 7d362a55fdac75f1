package database

import "stratd/src/datamodels"

var DbTables = []interface{}{
	&datamodels.TradeEvent{},
	&datamodels.StatsSnapshot{},
}
