package node

import (
	"math"
	"strconv"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/builder"
	"github.com/NethermindEth/katana/clients/starknet"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/gasoracle"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/l1"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/messaging"
	"github.com/NethermindEth/katana/metrics"
	"github.com/NethermindEth/katana/utils"
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

func makeDBMetrics() db.EventListener {
	latencyBuckets := []float64{
		25,
		50,
		75,
		100,
		250,
		500,
		1000, // 1ms
		2000,
		3000,
		4000,
		5000,
		10000,
		50000,
		500000,
		math.Inf(0),
	}
	readLatencyHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: "db",
		Name:      "read_latency",
		Buckets:   latencyBuckets,
	})
	writeLatencyHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: "db",
		Name:      "write_latency",
		Buckets:   latencyBuckets,
	})
	commitLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: "db",
		Name:      "commit_latency",
		Buckets: []float64{
			5000,
			10000,
			20000,
			50000,
			100000, // 100ms
			200000,
			500000,
			1000000,
			math.Inf(0),
		},
	})

	metrics.MustRegister(readLatencyHistogram, writeLatencyHistogram, commitLatency)
	return &db.SelectiveListener{
		OnIOCb: func(write bool, duration time.Duration) {
			if write {
				writeLatencyHistogram.Observe(float64(duration.Microseconds()))
			} else {
				readLatencyHistogram.Observe(float64(duration.Microseconds()))
			}
		},
		OnCommitCb: func(duration time.Duration) {
			commitLatency.Observe(float64(duration.Microseconds()))
		},
	}
}

func makePebbleMetrics(nodeDB db.DB) {
	pebbleDB, ok := nodeDB.Impl().(*pebble.DB)
	if !ok {
		return
	}

	blockCacheSize := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "pebble",
		Name:      "block_cache_size",
	}, func() float64 {
		return float64(pebbleDB.Metrics().BlockCache.Size)
	})
	blockHitRate := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "pebble",
		Name:      "block_cache_hit_rate",
	}, func() float64 {
		m := pebbleDB.Metrics()
		return hitRate(m.BlockCache.Hits, m.BlockCache.Misses)
	})
	tableCacheSize := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "pebble",
		Name:      "table_cache_size",
	}, func() float64 {
		return float64(pebbleDB.Metrics().TableCache.Size)
	})
	tableHitRate := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "pebble",
		Name:      "table_cache_hit_rate",
	}, func() float64 {
		m := pebbleDB.Metrics()
		return hitRate(m.TableCache.Hits, m.TableCache.Misses)
	})
	metrics.MustRegister(blockCacheSize, blockHitRate, tableCacheSize, tableHitRate)
}

func hitRate(hits, misses int64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

func makeBlockchainMetrics() blockchain.EventListener {
	reads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "blockchain",
		Name:      "reads",
	}, []string{"method"})
	stored := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "blockchain",
		Name:      "stored_transactions",
	})
	storeLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: "blockchain",
		Name:      "store_latency",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	l1Accepted := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "blockchain",
		Name:      "l1_accepted",
	})
	metrics.MustRegister(reads, stored, storeLatency, l1Accepted)

	return &blockchain.SelectiveListener{
		OnReadCb: func(method string) {
			reads.WithLabelValues(method).Inc()
		},
		OnStoredCb: func(_ uint64, txs int, took time.Duration) {
			stored.Add(float64(txs))
			storeLatency.Observe(took.Seconds())
		},
		OnL1AcceptedCb: func(number uint64) {
			l1Accepted.Set(float64(number))
		},
	}
}

func makeMempoolMetrics() mempool.EventListener {
	size := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "mempool",
		Name:      "size",
	})
	added := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "mempool",
		Name:      "added",
	})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "mempool",
		Name:      "rejected",
	})
	metrics.MustRegister(size, added, rejected)

	return &mempool.SelectiveListener{
		OnAddedCb: func(poolSize int) {
			added.Inc()
			size.Set(float64(poolSize))
		},
		OnTakenCb: func(_, poolSize int) {
			size.Set(float64(poolSize))
		},
		OnRejectedCb: func(error) {
			rejected.Inc()
		},
	}
}

func makeBuilderMetrics() builder.EventListener {
	blocks := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "builder",
		Name:      "blocks_mined",
	})
	txs := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "builder",
		Name:      "transactions_mined",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "builder",
		Name:      "transactions_dropped",
	})
	height := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "builder",
		Name:      "height",
	})
	sealLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: "builder",
		Name:      "block_latency",
	})
	metrics.MustRegister(blocks, txs, dropped, height, sealLatency)

	return &builder.SelectiveListener{
		OnBlockFinalisedCb: func(header *core.Header, took time.Duration) {
			blocks.Inc()
			txs.Add(float64(header.TransactionCount))
			height.Set(float64(header.Number))
			sealLatency.Observe(took.Seconds())
		},
		OnTransactionsExecutedCb: func(_, droppedTxs int) {
			dropped.Add(float64(droppedTxs))
		},
	}
}

func makeRPCMetrics() jsonrpc.EventListener {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "rpc",
		Name:      "requests",
	}, []string{"method"})
	failedRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "rpc",
		Name:      "failed_requests",
	}, []string{"method", "error_code"})
	requestLatencies := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: "rpc",
		Name:      "requests_latency",
	}, []string{"method"})
	metrics.MustRegister(requests, failedRequests, requestLatencies)

	return &jsonrpc.SelectiveListener{
		OnNewRequestCb: func(method string) {
			requests.WithLabelValues(method).Inc()
		},
		OnRequestHandledCb: func(method string, took time.Duration) {
			requestLatencies.WithLabelValues(method).Observe(took.Seconds())
		},
		OnRequestFailedCb: func(method string, err *jsonrpc.Error) {
			var errorCode string
			if err != nil {
				errorCode = strconv.Itoa(err.Code)
			}
			failedRequests.WithLabelValues(method, errorCode).Inc()
		},
	}
}

func makeExecutorMetrics(factory *ThrottledFactory) {
	jobs := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "executor",
		Name:      "jobs",
	}, func() float64 {
		return float64(factory.JobsRunning())
	})
	queue := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "executor",
		Name:      "queue",
	}, func() float64 {
		return float64(factory.QueueLen())
	})
	metrics.MustRegister(jobs, queue)
}

func makeGasPriceMetrics() gasoracle.EventListener {
	gasPrice := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "gas_oracle",
		Name:      "gas_price",
	}, []string{"unit"})
	dataGasPrice := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "gas_oracle",
		Name:      "data_gas_price",
	}, []string{"unit"})
	metrics.MustRegister(gasPrice, dataGasPrice)

	set := func(gauge *prometheus.GaugeVec, price *core.GasPrice) {
		gauge.WithLabelValues("wei").Set(feltToFloat(price.PriceInWei))
		gauge.WithLabelValues("fri").Set(feltToFloat(price.PriceInFri))
	}
	return gasoracle.SelectiveListener{
		OnPricesCb: func(gas, data *core.GasPrice) {
			set(gasPrice, gas)
			set(dataGasPrice, data)
		},
	}
}

// feltToFloat saturates prices that do not fit a uint64.
func feltToFloat(f *felt.Felt) float64 {
	if f == nil {
		return 0
	}
	v, ok := utils.FeltToUint64(f)
	if !ok {
		return math.MaxUint64
	}
	return float64(v)
}

func makeL1Metrics() l1.EventListener {
	callLatencies := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: "l1",
		Name:      "call_latency",
	}, []string{"method"})
	metrics.MustRegister(callLatencies)

	return l1.SelectiveListener{
		OnCallCb: func(method string, took time.Duration) {
			callLatencies.WithLabelValues(method).Observe(took.Seconds())
		},
	}
}

func makeStarknetClientMetrics(client string) starknet.EventListener {
	requestLatencies := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   metrics.Namespace,
		Subsystem:   "starknet_client",
		Name:        "request_latency",
		ConstLabels: prometheus.Labels{"client": client},
	}, []string{"method", "status"})
	metrics.MustRegister(requestLatencies)

	return starknet.SelectiveListener{
		OnRequestCb: func(method string, took time.Duration, err error) {
			status := "ok"
			if err != nil {
				status = "error"
			}
			requestLatencies.WithLabelValues(method, status).Observe(took.Seconds())
		},
	}
}

func makeMessagingMetrics() messaging.EventListener {
	gathered := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "messaging",
		Name:      "gathered",
	})
	sent := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "messaging",
		Name:      "sent",
	})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "messaging",
		Name:      "failures",
	}, []string{"path"})
	metrics.MustRegister(gathered, sent, failures)

	return &messaging.SelectiveListener{
		OnMessagesGatheredCb: func(count int) {
			gathered.Add(float64(count))
		},
		OnMessagesSentCb: func(count int) {
			sent.Add(float64(count))
		},
		OnErrorCb: func(path string) {
			failures.WithLabelValues(path).Inc()
		},
	}
}
