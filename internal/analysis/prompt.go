package analysis

// receiptPrompt is the shared prompt used by the vision-model analyzers. The
// requested shape is converted into the same Result produced by Document
// Intelligence.
const receiptPrompt = `You are analyzing a receipt. Carefully read all text in the image and extract the following information:

1. **Merchant**: the store or business name, usually the largest text at the top of the receipt.
2. **Transaction date**: the purchase date, converted to ISO 8601 format (YYYY-MM-DD).
3. **Subtotal**, **total tax**, **tip** and **total**: numeric values only (e.g., 42.75 for $42.75).
4. **Items**: every purchased line item in the order printed, with description, quantity, unit price and line total.

For every value also report your confidence between 0 and 1.

Return ONLY valid JSON in this exact format:
{
  "is_receipt": true,
  "doc_type": "receipt.retailMeal",
  "merchant_name": {"value": "Store Name", "confidence": 0.95},
  "transaction_date": {"value": "YYYY-MM-DD", "confidence": 0.9},
  "subtotal": {"value": 0.00, "confidence": 0.9},
  "total_tax": {"value": 0.00, "confidence": 0.9},
  "tip": {"value": 0.00, "confidence": 0.9},
  "total": {"value": 0.00, "confidence": 0.9},
  "items": [
    {"description": "Item", "quantity": 1, "price": 0.00, "total_price": 0.00, "confidence": 0.9}
  ]
}

Important:
- doc_type is one of "receipt.retailMeal", "receipt.creditCard", "receipt.gas", "receipt.parking", "receipt.hotel" or "receipt"
- If the image is not a receipt, return {"is_receipt": false}
- If you cannot find a field, use null for that field
- Amounts must be numbers, not strings
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

const systemPrompt = "You are an expert at reading and extracting information from receipts. You must carefully read all text in images and extract accurate information."
