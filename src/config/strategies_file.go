package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"stratd/src/datamodels"
	"stratd/src/lifecycle"
	"stratd/src/utils/errors"
)

/*
ParseStrategiesFile reads the line-oriented bulk deploy file:

	# strategyRef,strategyId,allocation[,symbol...]
	momentum,momo_btc,0.4,BTC-USD
	random,,0.3,ETH-USD,SOL-USD

Blank lines and #-comments are skipped. A missing strategyId is filled in
at deploy time. Allocations are taken as written; no renormalization
happens here, the registry validates the total.
*/
func ParseStrategiesFile(path string) ([]lifecycle.DeployRequest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open strategies file %s", path)
	}
	defer file.Close()

	var requests []lifecycle.DeployRequest
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) < 4 {
			return nil, errors.Newf("line %d: expected strategyRef,strategyId,allocation,symbol..., got %q", lineNo, line)
		}

		strategyRef := strings.TrimSpace(fields[0])
		if strategyRef == "" {
			return nil, errors.Newf("line %d: strategy reference is empty", lineNo)
		}
		allocation, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: bad allocation %q", lineNo, fields[2])
		}
		if allocation <= 0 {
			return nil, errors.Newf("line %d: allocation must be positive, got %f", lineNo, allocation)
		}

		var symbols []datamodels.Instrument
		for _, raw := range fields[3:] {
			symbol := strings.TrimSpace(raw)
			if symbol != "" {
				symbols = append(symbols, datamodels.Instrument(symbol))
			}
		}
		if len(symbols) == 0 {
			return nil, errors.Newf("line %d: no symbols given", lineNo)
		}

		requests = append(requests, lifecycle.DeployRequest{
			StrategyRef: strategyRef,
			StrategyId:  strings.TrimSpace(fields[1]),
			Allocation:  allocation,
			Symbols:     symbols,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed reading strategies file %s", path)
	}
	return requests, nil
}
