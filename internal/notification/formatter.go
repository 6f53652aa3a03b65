package notification

import (
	"fmt"
	"strings"
	"time"

	"ethtrend/internal/model"
)

var directionEmoji = map[model.Direction]string{
	model.Bullish:          "🚀📈",
	model.Bearish:          "📉🔻",
	model.Sideways:         "↔️📊",
	model.WeakBullish:      "📈⬆️",
	model.WeakBearish:      "📊⬇️",
	model.InsufficientData: "❓📊",
}

func strengthEmoji(strength float64) string {
	switch {
	case strength >= 75:
		return "💪💪💪"
	case strength >= 50:
		return "💪💪"
	case strength >= 25:
		return "💪"
	default:
		return "😴"
	}
}

func fibEmoji(level float64) string {
	switch level {
	case 0.382:
		return "🎯"
	case 0.618:
		return "🏆"
	case 0.5:
		return "⚖️"
	default:
		return "📐"
	}
}

func confidenceEmoji(confidence float64) string {
	switch {
	case confidence > 70:
		return "🔥"
	case confidence > 40:
		return "⚡"
	default:
		return "💭"
	}
}

// clockTime extracts HH:MM:SS from an RFC3339 timestamp, falling back to
// the current time when the stamp is missing or malformed.
func clockTime(stamp string) string {
	if t, err := time.Parse(time.RFC3339, stamp); err == nil {
		return t.Format("15:04:05")
	}
	return time.Now().Format("15:04:05")
}

// AnalysisHTML renders a snapshot as the Telegram HTML message.
func AnalysisHTML(snap *model.AnalysisSnapshot) string {
	emoji, ok := directionEmoji[snap.Direction]
	if !ok {
		emoji = "❓"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🎯 <b>ETH Trend Analysis</b>\n\n")
	fmt.Fprintf(&b, "💰 <b>Current Price:</b> $%.2f\n", snap.Price)
	fmt.Fprintf(&b, "📊 <b>Current Candle:</b> H: $%.2f | L: $%.2f\n\n", snap.High, snap.Low)
	fmt.Fprintf(&b, "📈 <b>Direction:</b> %s %s\n", snap.Direction, emoji)
	fmt.Fprintf(&b, "%s <b>Confidence:</b> %.1f%%\n\n", confidenceEmoji(snap.Confidence), snap.Confidence)
	fmt.Fprintf(&b, "%s <b>Fibonacci Analysis:</b>\n", fibEmoji(snap.DominantLevel))
	fmt.Fprintf(&b, "   • Avg Retracement: <code>%.1f%%</code>\n", snap.AvgRetracement)
	fmt.Fprintf(&b, "   • Dominant Level: <code>%g</code>\n\n", snap.DominantLevel)
	fmt.Fprintf(&b, "%s <b>Trend Strength:</b> %g/100", strengthEmoji(snap.TrendStrength), snap.TrendStrength)

	if snap.SwingPointsFound {
		fmt.Fprintf(&b, "\n\n🎯 <b>Swing Levels:</b>\n")
		fmt.Fprintf(&b, "   🔺 <b>Last Swing High:</b> $%.2f <i>(%d candles ago)</i>\n",
			*snap.LastSwingHigh, *snap.SwingHighAge)
		fmt.Fprintf(&b, "   🔻 <b>Last Swing Low:</b> $%.2f <i>(%d candles ago)</i>",
			*snap.LastSwingLow, *snap.SwingLowAge)
	} else {
		fmt.Fprintf(&b, "\n\n⚠️ <b>Swing Levels:</b> <i>Detecting...</i>")
	}

	fmt.Fprintf(&b, "\n\n📈 <b>Analysis Details:</b>\n")
	fmt.Fprintf(&b, "   • Window: %d candles\n", snap.AnalysisWindow)
	fmt.Fprintf(&b, "   • Sample Size: %d valid pairs\n", snap.SampleSize)
	fmt.Fprintf(&b, "   • Total Candles: %d\n\n", snap.CandlesAnalyzed)
	fmt.Fprintf(&b, "⏰ <b>Time:</b> %s\n", clockTime(snap.Timestamp))
	fmt.Fprintf(&b, "🔄 <b>Next Update:</b> %d minutes", snap.NextUpdateMinutes)

	return b.String()
}

// FibAlertHTML renders a per-candle Fibonacci retracement alert.
func FibAlertHTML(r model.FibResult, prev, cur model.Candle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>Fibonacci Alert</b>\n\n", fibEmoji(r.Level))
	fmt.Fprintf(&b, "💰 <b>Price:</b> $%.2f\n", cur.Close)
	fmt.Fprintf(&b, "📐 <b>Level:</b> <code>%g</code>\n", r.Level)
	fmt.Fprintf(&b, "📊 <b>Retracement:</b> %.1f%% (%s)\n", r.RetracementPct, r.Polarity)
	fmt.Fprintf(&b, "↕️ <b>Prior Range:</b> $%.2f\n\n", r.RangeSize)
	fmt.Fprintf(&b, "⏰ %s", time.UnixMilli(cur.OpenTime).UTC().Format("15:04:05"))
	return b.String()
}

// ConsoleSummary renders a snapshot for the local log.
func ConsoleSummary(snap *model.AnalysisSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 ETH Analysis Summary\n")
	fmt.Fprintf(&b, "Current Price: $%.2f\n", snap.Price)
	fmt.Fprintf(&b, "Current Candle - High: $%.2f | Low: $%.2f\n\n", snap.High, snap.Low)
	fmt.Fprintf(&b, "Direction: %s (Confidence: %g%%)\n", snap.Direction, snap.Confidence)
	fmt.Fprintf(&b, "Avg Fibonacci Retracement: %g%%\n", snap.AvgRetracement)
	fmt.Fprintf(&b, "Dominant Fib Level: %g\n", snap.DominantLevel)
	fmt.Fprintf(&b, "Trend Strength: %g/100\n", snap.TrendStrength)
	fmt.Fprintf(&b, "Sample Size: %d pairs", snap.SampleSize)

	if snap.SwingPointsFound {
		fmt.Fprintf(&b, "\n\n🔺 Last Swing High: $%.2f (%d candles ago)\n", *snap.LastSwingHigh, *snap.SwingHighAge)
		fmt.Fprintf(&b, "🔻 Last Swing Low: $%.2f (%d candles ago)\n", *snap.LastSwingLow, *snap.SwingLowAge)
		fmt.Fprintf(&b, "📊 Swing Count: %d highs, %d lows", snap.TotalSwingHighs, snap.TotalSwingLows)
	} else {
		fmt.Fprintf(&b, "\n\n⚠️ Swing points: Insufficient data for detection")
	}

	fmt.Fprintf(&b, "\n\nNext Update: %d minutes", snap.NextUpdateMinutes)
	return b.String()
}

// StartupHTML is sent once after the stream connects.
func StartupHTML(window, intervalMinutes, historicalLimit int) string {
	return fmt.Sprintf(`🚀 <b>ETH Trend Analyzer Started</b>

✅ WebSocket connection established
📊 Historical data loaded
🔄 Real-time analysis active

<b>Settings:</b>
• Analysis Window: %d candles
• Update Interval: %d minutes
• Historical Data: %d candles

<i>System online and monitoring ETH/USDT...</i>

⏰ Started at: %s`, window, intervalMinutes, historicalLimit, time.Now().Format("15:04:05"))
}

// ShutdownHTML is sent on graceful shutdown.
func ShutdownHTML() string {
	return fmt.Sprintf(`🛑 <b>ETH Analyzer Shutdown</b>

✅ System stopped gracefully
⏰ %s`, time.Now().Format("2006-01-02 15:04:05"))
}

// ErrorHTML reports a runtime failure.
func ErrorHTML(err error) string {
	return fmt.Sprintf(`⚠️ <b>ETH Analyzer Error</b>

❌ <code>%v</code>

🔄 System will attempt to recover automatically...

⏰ %s`, err, time.Now().Format("15:04:05"))
}
