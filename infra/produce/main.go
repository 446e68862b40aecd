package produce

import amqp "github.com/rabbitmq/amqp091-go"

type Produce struct {
	ScanService *ScanProduceService
}

var produceInstance *Produce

func InitProduce(channel *amqp.Channel) *Produce {
	if produceInstance != nil {
		return produceInstance
	}

	scanService := InitScanProduceService(channel)
	if scanService == nil {
		panic("Failed to initialize Scan produce service")
	}

	produceInstance = &Produce{
		ScanService: scanService,
	}

	return produceInstance
}

func GetProduce() *Produce {
	if produceInstance == nil {
		panic("Produce not initialized. Call InitProduce() first.")
	}
	return produceInstance
}
