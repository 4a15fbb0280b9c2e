package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	marketsdk "github.com/tokenreef/marketplace-sdk-go"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	client, err := marketsdk.NewClient(marketsdk.ClientConfig{
		APIKey:  os.Getenv("MARKETPLACE_API_KEY"),
		ChainID: marketsdk.ChainIDPolygon,
		RPCURL:  os.Getenv("POLYGON_RPC_URL"),
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()

	// Read-side queries go through the shared query cache.
	collection := "0x631998e91476DA5B870D741192fc5Cbc55F5a52E"
	listings, err := client.ListListings(ctx, collection, "1", 1, 10)
	if err != nil {
		log.Fatalf("failed to list listings: %v", err)
	}
	for _, l := range listings {
		fmt.Printf("listing %s: %s wei by %s\n", l.OrderID, l.PriceAmount, l.Maker)
	}

	lowest, err := client.LowestListing(ctx, collection, "1")
	if err != nil {
		log.Fatalf("failed to fetch lowest listing: %v", err)
	}
	if lowest == nil {
		fmt.Println("no listings for this collectible")
		return
	}
	fmt.Printf("lowest listing: %s at %s wei\n", lowest.OrderID, lowest.PriceAmount)

	// Order actions need a connected wallet. Wire your provider behind the
	// marketsdk.Wallet interface; here we stop before executing.
	var wallet marketsdk.Wallet
	if wallet == nil {
		fmt.Println("connect a wallet to run order actions")
		return
	}

	orchestrator, err := client.NewOrchestrator(wallet, marketsdk.Callbacks{
		OnStatus: func(status marketsdk.TransactionStatus) {
			fmt.Printf("status: %s\n", status)
		},
		OnSuccess: func(result *marketsdk.TransactionResult) {
			fmt.Printf("done: hash=%s orderId=%s\n", result.Hash.Hex(), result.OrderID)
		},
		OnError: func(err error) {
			fmt.Printf("action failed: %v\n", err)
		},
	})
	if err != nil {
		log.Fatalf("failed to create orchestrator: %v", err)
	}

	// UIs bind to the step slots to drive approve/confirm buttons.
	orchestrator.Steps().Watch(func(snap marketsdk.ExecutionStepsSnapshot) {
		fmt.Printf("approval=%+v transaction=%+v\n", snap.Approval, snap.Transaction)
	})

	buyer, _ := wallet.Address()
	result, err := orchestrator.BuyMarket(ctx, &marketsdk.BuyParams{
		ChainID:           marketsdk.ChainIDPolygon,
		CollectionAddress: collection,
		Buyer:             buyer.Hex(),
		OrderID:           lowest.OrderID,
		CollectibleID:     lowest.TokenID,
		Quantity:          "1",
	})
	if err != nil {
		log.Fatalf("buy failed: %v", err)
	}
	fmt.Printf("bought %s in tx %s\n", lowest.OrderID, result.Hash.Hex())
}
